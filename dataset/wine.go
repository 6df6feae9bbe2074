package dataset

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"
)

// wineData is the UCI wine recognition data (178 rows, class in the first
// column, classes numbered from 1).
//
//go:embed wine.data
var wineData []byte

var (
	wineOnce sync.Once
	wine     *Dataset
)

func loadWine() {
	ds, err := ReadCSV(bytes.NewReader(wineData), DefaultCSVOptions())
	if err != nil {
		panic(fmt.Sprintf("embedded wine data: %v", err))
	}
	wine = ds
}

// Wine returns the 178-row, 13-feature, 3-class wine dataset. Every call
// returns a fresh copy the caller may modify.
func Wine() *Dataset {
	wineOnce.Do(loadWine)
	ds := &Dataset{
		Features:     make([][]float64, len(wine.Features)),
		Labels:       append([]int(nil), wine.Labels...),
		FeatureNames: append([]string(nil), wine.FeatureNames...),
		ClassNames:   append([]string(nil), wine.ClassNames...),
	}
	for i, row := range wine.Features {
		ds.Features[i] = append([]float64(nil), row...)
	}
	return ds
}

// FirstSample returns a copy of the first wine row (class_0).
func FirstSample() []float64 {
	return Wine().Features[0]
}
