package ml

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNotTrained      = errors.New("model not trained")
	ErrEmptyData       = errors.New("features or labels empty")
	ErrShapeMismatch   = errors.New("features and labels size mismatch")
	ErrFeatureCount    = errors.New("unexpected number of features")
	ErrInvalidModel    = errors.New("invalid model state")
	ErrUnsupportedKind = errors.New("unsupported model type")
)

// Classifier is a trained or trainable multi-class model over dense float
// feature vectors.
type Classifier interface {
	Kind() string
	Train(features [][]float64, labels []int) error
	// Predict returns the predicted label and its probability.
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
	NumClasses() int
	NumFeatures() int
}

func checkTrainingData(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyData
	}
	if len(features) != len(labels) {
		return ErrShapeMismatch
	}
	width := len(features[0])
	if width == 0 {
		return ErrEmptyData
	}
	for _, row := range features {
		if len(row) != width {
			return ErrFeatureCount
		}
	}
	for _, label := range labels {
		if label < 0 {
			return errors.New("labels must be non-negative")
		}
	}
	return nil
}

func countClasses(labels []int) int {
	n := 0
	for _, label := range labels {
		if label+1 > n {
			n = label + 1
		}
	}
	return n
}
