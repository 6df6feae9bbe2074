// Package modelstore serializes trained classifiers into self-describing
// artifacts and moves them to and from storage.
package modelstore

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"winemodel/ml"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	Format         = "winemodel"
	CurrentVersion = 1
)

var (
	ErrNotArtifact        = errors.New("not a model artifact")
	ErrUnsupportedVersion = errors.New("unsupported artifact version")
)

// Artifact is a trained model plus what a caller needs to use it safely: the
// feature order it expects and the names of the classes it predicts.
type Artifact struct {
	ID           string
	Kind         string
	FeatureNames []string
	ClassNames   []string
	CreatedAt    time.Time
	Metrics      *ml.Evaluation
	Model        ml.Classifier
}

// NewArtifact stamps model with a fresh ID and the current time.
func NewArtifact(model ml.Classifier, featureNames, classNames []string, metrics *ml.Evaluation) *Artifact {
	return &Artifact{
		ID:           uuid.NewString(),
		Kind:         model.Kind(),
		FeatureNames: append([]string(nil), featureNames...),
		ClassNames:   append([]string(nil), classNames...),
		CreatedAt:    time.Now().UTC(),
		Metrics:      metrics,
		Model:        model,
	}
}

type envelope struct {
	Format       string              `json:"format"`
	Version      int                 `json:"version"`
	ID           string              `json:"id"`
	Kind         string              `json:"kind"`
	FeatureNames []string            `json:"feature_names"`
	ClassNames   []string            `json:"class_names"`
	CreatedAt    time.Time           `json:"created_at"`
	Metrics      *ml.Evaluation      `json:"metrics,omitempty"`
	Model        jsoniter.RawMessage `json:"model"`
}

// Encode writes the artifact as gzip-compressed JSON.
func Encode(w io.Writer, a *Artifact) error {
	if a == nil || a.Model == nil {
		return errors.New("artifact has no model")
	}
	if len(a.FeatureNames) != a.Model.NumFeatures() {
		return fmt.Errorf("artifact lists %d feature names, model expects %d", len(a.FeatureNames), a.Model.NumFeatures())
	}
	payload, err := json.Marshal(a.Model)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", a.Kind, err)
	}

	zw := gzip.NewWriter(w)
	zw.Name = Format
	if err := json.NewEncoder(zw).Encode(envelope{
		Format:       Format,
		Version:      CurrentVersion,
		ID:           a.ID,
		Kind:         a.Model.Kind(),
		FeatureNames: a.FeatureNames,
		ClassNames:   a.ClassNames,
		CreatedAt:    a.CreatedAt,
		Metrics:      a.Metrics,
		Model:        payload,
	}); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Decode reads an artifact written by Encode.
func Decode(r io.Reader) (*Artifact, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArtifact, err)
	}
	defer zr.Close()

	var env envelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArtifact, err)
	}
	if env.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrNotArtifact, env.Format)
	}
	if env.Version < 1 || env.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	model, err := ml.LoadModel(env.Kind, env.Model)
	if err != nil {
		return nil, err
	}
	if len(env.FeatureNames) != model.NumFeatures() {
		return nil, fmt.Errorf("%w: %d feature names for a %d-feature model", ErrNotArtifact, len(env.FeatureNames), model.NumFeatures())
	}
	return &Artifact{
		ID:           env.ID,
		Kind:         env.Kind,
		FeatureNames: env.FeatureNames,
		ClassNames:   env.ClassNames,
		CreatedAt:    env.CreatedAt,
		Metrics:      env.Metrics,
		Model:        model,
	}, nil
}

// ClassName returns the display name of a label, or its number when the
// artifact carries no name for it.
func (a *Artifact) ClassName(label int) string {
	if label >= 0 && label < len(a.ClassNames) {
		return a.ClassNames[label]
	}
	return fmt.Sprintf("%d", label)
}
