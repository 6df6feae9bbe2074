package dataset

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FeatureSummary holds descriptive statistics for one column.
type FeatureSummary struct {
	Name string  `json:"name" yaml:"name"`
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
}

// Summary describes a dataset.
type Summary struct {
	Samples     int              `json:"samples" yaml:"samples"`
	Features    []FeatureSummary `json:"features" yaml:"features"`
	ClassCounts map[string]int   `json:"class_counts" yaml:"class_counts"`
}

// Describe computes per-feature statistics and class counts.
func Describe(ds *Dataset) (*Summary, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	summary := &Summary{
		Samples:     ds.Len(),
		Features:    make([]FeatureSummary, 0, ds.NumFeatures()),
		ClassCounts: make(map[string]int),
	}

	names := ds.FeatureNames
	if len(names) != ds.NumFeatures() {
		names = featureNamesFor(nil, 0, ds.NumFeatures())
	}
	classes := ds.ClassNames
	if len(classes) < ds.NumClasses() {
		classes = classNamesFor(ds.NumClasses())
	}

	column := make([]float64, ds.Len())
	for j := 0; j < ds.NumFeatures(); j++ {
		for i, row := range ds.Features {
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		summary.Features = append(summary.Features, FeatureSummary{
			Name: names[j],
			Mean: mean,
			Std:  std,
			Min:  floats.Min(column),
			Max:  floats.Max(column),
		})
	}

	for label, count := range ds.ClassCounts() {
		summary.ClassCounts[classes[label]] = count
	}
	return summary, nil
}
