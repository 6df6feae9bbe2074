package pipeline

import (
	"errors"
	"math"
	"testing"

	"winemodel/dataset"
)

func testDataset(rows [][]float64, labels []int) *dataset.Dataset {
	return &dataset.Dataset{
		Features:     rows,
		Labels:       labels,
		FeatureNames: []string{"a", "b"},
		ClassNames:   []string{"x", "y"},
	}
}

func TestDataCleaner(t *testing.T) {
	ds := testDataset([][]float64{
		{1, 2},
		{math.NaN(), 2},
		{-1, 2},
		{1, 2},
		{1, 2, 3},
		{3, 4},
	}, []int{0, 0, 1, 0, 1, 1})

	cleaned, issues, stats := NewDataCleaner(2).Clean(ds)

	if cleaned.Len() != 2 {
		t.Fatalf("expected 2 rows after cleaning, got %d", cleaned.Len())
	}
	if stats.TotalProcessed != 6 || stats.Passed != 2 || stats.Rejected != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	for _, rule := range []string{"finite", "non_negative", "duplicate", "width"} {
		if stats.Issues[rule] != 1 {
			t.Errorf("expected one %s issue, got %d", rule, stats.Issues[rule])
		}
	}
	if len(issues) != 4 {
		t.Errorf("expected 4 issues, got %d", len(issues))
	}
	if cleaned.Labels[1] != 1 || cleaned.Features[1][0] != 3 {
		t.Errorf("unexpected surviving row: %v label %d", cleaned.Features[1], cleaned.Labels[1])
	}
}

func TestDataCleanerIsRepeatable(t *testing.T) {
	ds := testDataset([][]float64{{1, 2}, {3, 4}}, []int{0, 1})
	cleaner := NewDataCleaner(2)

	for i := 0; i < 2; i++ {
		cleaned, _, stats := cleaner.Clean(ds)
		if cleaned.Len() != 2 || stats.Rejected != 0 {
			t.Fatalf("run %d: expected all rows kept, got %d (rejected %d)", i, cleaned.Len(), stats.Rejected)
		}
	}
}

var errBannedLabel = errors.New("banned label")

type labelRule struct{ banned int }

func (labelRule) Name() string { return "label" }

func (r labelRule) Apply(s Sample) error {
	if s.Label == r.banned {
		return errBannedLabel
	}
	return nil
}

func TestDataCleanerCustomRule(t *testing.T) {
	ds := testDataset([][]float64{{1, 2}, {3, 4}}, []int{0, 1})
	cleaner := NewDataCleaner(2)
	cleaner.AddRule(labelRule{banned: 1})

	cleaned, issues, _ := cleaner.Clean(ds)
	if cleaned.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", cleaned.Len())
	}
	if len(issues) != 1 || issues[0].Rule != "label" || issues[0].Row != 1 {
		t.Errorf("unexpected issues: %+v", issues)
	}
}

func TestWineDataPassesCleaning(t *testing.T) {
	ds := dataset.Wine()
	cleaned, issues, _ := NewDataCleaner(ds.NumFeatures()).Clean(ds)
	if cleaned.Len() != ds.Len() {
		t.Errorf("expected no rows dropped from the wine data, got issues %+v", issues)
	}
}
