// Package dataset holds the tabular wine data used to train and evaluate
// classifiers, together with loaders and split helpers.
package dataset

import (
	"errors"
	"fmt"
)

// FeatureNames lists the wine features in column order.
var FeatureNames = []string{
	"alcohol",
	"malic_acid",
	"ash",
	"alcalinity_of_ash",
	"magnesium",
	"total_phenols",
	"flavanoids",
	"nonflavanoid_phenols",
	"proanthocyanins",
	"color_intensity",
	"hue",
	"od280/od315_of_diluted_wines",
	"proline",
}

// ClassNames lists the wine cultivars, indexed by label.
var ClassNames = []string{"class_0", "class_1", "class_2"}

var (
	ErrEmpty         = errors.New("dataset is empty")
	ErrShapeMismatch = errors.New("features and labels size mismatch")
)

// Dataset is a feature matrix with one integer label per row.
type Dataset struct {
	Features     [][]float64
	Labels       []int
	FeatureNames []string
	ClassNames   []string
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

func (d *Dataset) NumFeatures() int {
	if len(d.FeatureNames) > 0 {
		return len(d.FeatureNames)
	}
	if len(d.Features) > 0 {
		return len(d.Features[0])
	}
	return 0
}

// NumClasses is the larger of the declared class count and the highest label + 1.
func (d *Dataset) NumClasses() int {
	n := len(d.ClassNames)
	for _, label := range d.Labels {
		if label+1 > n {
			n = label + 1
		}
	}
	return n
}

// Validate checks that every row has the declared width and every label is
// non-negative.
func (d *Dataset) Validate() error {
	if len(d.Features) == 0 || len(d.Labels) == 0 {
		return ErrEmpty
	}
	if len(d.Features) != len(d.Labels) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(d.Features), len(d.Labels))
	}
	width := d.NumFeatures()
	for i, row := range d.Features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	for i, label := range d.Labels {
		if label < 0 {
			return fmt.Errorf("row %d has negative label %d", i, label)
		}
	}
	return nil
}

// Subset returns a dataset made of the given rows. Rows are shared, not copied.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Features:     make([][]float64, 0, len(indices)),
		Labels:       make([]int, 0, len(indices)),
		FeatureNames: d.FeatureNames,
		ClassNames:   d.ClassNames,
	}
	for _, idx := range indices {
		out.Features = append(out.Features, d.Features[idx])
		out.Labels = append(out.Labels, d.Labels[idx])
	}
	return out
}

// ClassCounts returns how many rows carry each label.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, d.NumClasses())
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}
