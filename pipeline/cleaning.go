package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"winemodel/dataset"
)

// Sample is one row under inspection by the cleaning rules.
type Sample struct {
	Index    int
	Features []float64
	Label    int
}

// CleaningRule rejects a sample by returning an error.
type CleaningRule interface {
	Name() string
	Apply(Sample) error
}

// QualityIssue records one rejected sample and the rule that rejected it.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// CleaningStats counts what a cleaning pass kept and dropped.
type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Issues         map[string]int `json:"issues"`
}

// DataCleaner drops rows that fail any of its rules.
type DataCleaner struct {
	rules []CleaningRule
}

// NewDataCleaner returns a cleaner with the default rules for a dataset of the
// given width.
func NewDataCleaner(width int) *DataCleaner {
	return &DataCleaner{rules: []CleaningRule{
		WidthRule{Width: width},
		FiniteValueRule{},
		NonNegativeRule{},
		NewDuplicateRule(),
	}}
}

// AddRule appends rule. Rules run in the order they were added.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns a new dataset with the rejected rows removed.
func (dc *DataCleaner) Clean(ds *dataset.Dataset) (*dataset.Dataset, []QualityIssue, CleaningStats) {
	stats := CleaningStats{Issues: make(map[string]int)}
	var issues []QualityIssue
	keep := make([]int, 0, ds.Len())
	for _, rule := range dc.rules {
		if r, ok := rule.(interface{ Reset() }); ok {
			r.Reset()
		}
	}

	for i := range ds.Features {
		stats.TotalProcessed++
		sample := Sample{Index: i, Features: ds.Features[i], Label: ds.Labels[i]}
		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Apply(sample); err != nil {
				issues = append(issues, QualityIssue{Rule: rule.Name(), Row: i, Message: err.Error()})
				stats.Issues[rule.Name()]++
				rejected = true
				break
			}
		}
		if rejected {
			stats.Rejected++
			continue
		}
		stats.Passed++
		keep = append(keep, i)
	}
	return ds.Subset(keep), issues, stats
}

// WidthRule rejects rows whose feature count differs from Width.
type WidthRule struct {
	Width int
}

func (WidthRule) Name() string { return "width" }

func (r WidthRule) Apply(s Sample) error {
	if len(s.Features) != r.Width {
		return fmt.Errorf("%d features, want %d", len(s.Features), r.Width)
	}
	return nil
}

// FiniteValueRule rejects NaN and infinite values.
type FiniteValueRule struct{}

func (FiniteValueRule) Name() string { return "finite" }

func (FiniteValueRule) Apply(s Sample) error {
	for j, v := range s.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is %v", j, v)
		}
	}
	return nil
}

// NonNegativeRule rejects negative measurements; every wine feature is a
// concentration, ratio or intensity.
type NonNegativeRule struct{}

func (NonNegativeRule) Name() string { return "non_negative" }

func (NonNegativeRule) Apply(s Sample) error {
	for j, v := range s.Features {
		if v < 0 {
			return fmt.Errorf("feature %d is negative: %v", j, v)
		}
	}
	return nil
}

// DuplicateRule rejects a row identical in features and label to an earlier
// row. DataCleaner resets it at the start of every Clean.
type DuplicateRule struct {
	seen map[string]int
}

// NewDuplicateRule returns an empty duplicate detector.
func NewDuplicateRule() *DuplicateRule {
	return &DuplicateRule{seen: make(map[string]int)}
}

func (*DuplicateRule) Name() string { return "duplicate" }

// Reset forgets the rows seen so far.
func (r *DuplicateRule) Reset() {
	r.seen = make(map[string]int)
}

func (r *DuplicateRule) Apply(s Sample) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.Label))
	for _, v := range s.Features {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	key := b.String()
	if first, ok := r.seen[key]; ok {
		return errors.New("duplicate of row " + strconv.Itoa(first))
	}
	r.seen[key] = s.Index
	return nil
}
