// Package predict turns a named feature mapping into a class prediction.
package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"winemodel/ml"
	"winemodel/modelstore"
)

// MissingFeaturesMessage is the diagnostic emitted when a request lacks one or
// more of the model's features.
const MissingFeaturesMessage = "Input data is missing one or more required features."

// Request maps feature name to value.
type Request map[string]float64

// Response is the single-key prediction reply.
type Response struct {
	Prediction int `json:"prediction"`
}

// Detail extends Response with what the HTTP API reports.
type Detail struct {
	Prediction    int       `json:"prediction"`
	Class         string    `json:"class"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	ModelID       string    `json:"model_id"`
}

// MissingFeaturesError lists the absent features in sorted order.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("%s missing: %s", MissingFeaturesMessage, strings.Join(e.Missing, ", "))
}

// Validate checks that req has every name. Extra keys are ignored.
func Validate(req Request, names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := req[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingFeaturesError{Missing: missing}
	}
	return nil
}

// Vector orders the request's values by names.
func Vector(req Request, names []string) ([]float64, error) {
	if err := Validate(req, names); err != nil {
		return nil, err
	}
	vector := make([]float64, len(names))
	for i, name := range names {
		vector[i] = req[name]
	}
	return vector, nil
}

// IsMissingFeatures reports whether err came from a failed feature check.
func IsMissingFeatures(err error) (*MissingFeaturesError, bool) {
	var mf *MissingFeaturesError
	ok := errors.As(err, &mf)
	return mf, ok
}

// Predictor runs requests through one model artifact.
type Predictor struct {
	artifact *modelstore.Artifact
}

// NewPredictor fails with ml.ErrNotTrained when the artifact carries no model.
func NewPredictor(artifact *modelstore.Artifact) (*Predictor, error) {
	if artifact == nil || artifact.Model == nil {
		return nil, ml.ErrNotTrained
	}
	return &Predictor{artifact: artifact}, nil
}

// Artifact returns the artifact the predictor was built from.
func (p *Predictor) Artifact() *modelstore.Artifact {
	return p.artifact
}

// FeatureNames is the column order the model expects.
func (p *Predictor) FeatureNames() []string {
	return p.artifact.FeatureNames
}

// Predict returns the bare prediction for req.
func (p *Predictor) Predict(ctx context.Context, req Request) (Response, error) {
	detail, err := p.Detailed(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Prediction: detail.Prediction}, nil
}

// Detailed walks the model once and reports the most probable class together
// with the full probability vector.
func (p *Predictor) Detailed(ctx context.Context, req Request) (*Detail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vector, err := Vector(req, p.artifact.FeatureNames)
	if err != nil {
		return nil, err
	}
	proba, err := p.artifact.Model.PredictProba(vector)
	if err != nil {
		return nil, err
	}
	label := floats.MaxIdx(proba)
	return &Detail{
		Prediction:    label,
		Class:         p.artifact.ClassName(label),
		Confidence:    proba[label],
		Probabilities: proba,
		ModelID:       p.artifact.ID,
	}, nil
}

// Shape is the glue step of the train-and-reload workflow: when req lacks a
// feature it writes MissingFeaturesMessage to w and returns false, otherwise
// it returns the prediction.
func Shape(ctx context.Context, p *Predictor, req Request, w io.Writer) (*Response, bool, error) {
	resp, err := p.Predict(ctx, req)
	if _, missing := IsMissingFeatures(err); missing {
		fmt.Fprintln(w, MissingFeaturesMessage)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}
