package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/viant/afs"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var fileSystem = afs.New()

// CSVOptions controls how LoadCSV reads a delimited file.
type CSVOptions struct {
	Header         bool   // first row holds column names
	LabelFirst     bool   // label is the first column, otherwise the last
	OneBasedLabels bool   // labels start at 1 in the file
	Encoding       string // utf-8 (default), gbk or latin1
	Comma          rune
}

// DefaultCSVOptions matches the layout of wine.data: no header, class in the
// first column, classes numbered from 1.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Header:         false,
		LabelFirst:     true,
		OneBasedLabels: true,
		Encoding:       "utf-8",
		Comma:          ',',
	}
}

// LoadCSV reads a dataset from a local path or any URL understood by afs
// (file://, mem://, s3://, ...).
func LoadCSV(ctx context.Context, url string, opts CSVOptions) (*Dataset, error) {
	rc, err := fileSystem.OpenURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	defer rc.Close()

	ds, err := ReadCSV(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return ds, nil
}

// ReadCSV parses a dataset from r.
func ReadCSV(r io.Reader, opts CSVOptions) (*Dataset, error) {
	decoder, err := textDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, decoder))
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var header []string
	if opts.Header && len(records) > 0 {
		header, records = records[0], records[1:]
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	width := len(records[0])
	if width < 2 {
		return nil, fmt.Errorf("need at least one feature and a label, got %d columns", width)
	}
	labelCol := width - 1
	if opts.LabelFirst {
		labelCol = 0
	}

	ds := &Dataset{
		Features: make([][]float64, 0, len(records)),
		Labels:   make([]int, 0, len(records)),
	}
	maxLabel := 0
	for i, record := range records {
		line := i + 1
		if opts.Header {
			line++
		}
		if len(record) != width {
			return nil, fmt.Errorf("line %d: %d columns, want %d", line, len(record), width)
		}
		row := make([]float64, 0, width-1)
		for col, cell := range record {
			if col == labelCol {
				label, err := strconv.Atoi(strings.TrimSpace(cell))
				if err != nil {
					return nil, fmt.Errorf("line %d: label %q: %w", line, cell, err)
				}
				if opts.OneBasedLabels {
					label--
				}
				if label < 0 {
					return nil, fmt.Errorf("line %d: label %q out of range", line, cell)
				}
				if label > maxLabel {
					maxLabel = label
				}
				ds.Labels = append(ds.Labels, label)
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, col+1, err)
			}
			row = append(row, v)
		}
		ds.Features = append(ds.Features, row)
	}

	ds.FeatureNames = featureNamesFor(header, labelCol, width-1)
	ds.ClassNames = classNamesFor(maxLabel + 1)
	return ds, nil
}

func textDecoder(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func featureNamesFor(header []string, labelCol, n int) []string {
	if len(header) == n+1 {
		names := make([]string, 0, n)
		for i, name := range header {
			if i != labelCol {
				names = append(names, strings.TrimSpace(name))
			}
		}
		return names
	}
	if n == len(FeatureNames) {
		return append([]string(nil), FeatureNames...)
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("feature_%d", i)
	}
	return names
}

func classNamesFor(n int) []string {
	if n == len(ClassNames) {
		return append([]string(nil), ClassNames...)
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("class_%d", i)
	}
	return names
}
