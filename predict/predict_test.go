package predict

import (
	"bytes"
	"context"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winemodel/dataset"
	"winemodel/ml"
	"winemodel/modelstore"
)

func wineRequest() Request {
	req := Request{}
	for i, name := range dataset.FeatureNames {
		req[name] = dataset.FirstSample()[i]
	}
	return req
}

func newPredictor(t *testing.T) *Predictor {
	t.Helper()
	ds := dataset.Wine()
	forest := ml.NewRandomForest(15, 6, 2)
	require.NoError(t, forest.Train(ds.Features, ds.Labels))
	p, err := NewPredictor(modelstore.NewArtifact(forest, ds.FeatureNames, ds.ClassNames, nil))
	require.NoError(t, err)
	return p
}

func TestPredictAllFeatures(t *testing.T) {
	p := newPredictor(t)

	resp, err := p.Predict(context.Background(), wineRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Prediction)

	detail, err := p.Detailed(context.Background(), wineRequest())
	require.NoError(t, err)
	assert.Equal(t, "class_0", detail.Class)
	assert.Len(t, detail.Probabilities, 3)
	assert.Equal(t, p.Artifact().ID, detail.ModelID)
}

func TestPredictIgnoresExtraKeys(t *testing.T) {
	req := wineRequest()
	req["vintage"] = 1987
	_, err := newPredictor(t).Predict(context.Background(), req)
	assert.NoError(t, err)
}

func TestPredictMissingFeature(t *testing.T) {
	req := wineRequest()
	delete(req, "proline")
	delete(req, "alcohol")

	_, err := newPredictor(t).Predict(context.Background(), req)
	mf, ok := IsMissingFeatures(err)
	require.True(t, ok)
	assert.Equal(t, []string{"alcohol", "proline"}, mf.Missing)
	assert.Contains(t, err.Error(), MissingFeaturesMessage)
}

func TestShape(t *testing.T) {
	p := newPredictor(t)
	ctx := context.Background()

	var out bytes.Buffer
	resp, ok, err := Shape(ctx, p, wineRequest(), &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &Response{Prediction: 0}, resp)
	assert.Empty(t, out.String())

	req := wineRequest()
	delete(req, "hue")
	resp, ok, err = Shape(ctx, p, req, &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, resp)
	assert.Equal(t, MissingFeaturesMessage+"\n", out.String())
}

func TestResponseJSONShape(t *testing.T) {
	payload, err := jsoniter.Marshal(Response{Prediction: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction":2}`, string(payload))
}

func TestPredictCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPredictor(t).Predict(ctx, wineRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPredictorRequiresModel(t *testing.T) {
	_, err := NewPredictor(nil)
	assert.ErrorIs(t, err, ml.ErrNotTrained)
}

func TestVectorOrder(t *testing.T) {
	v, err := Vector(Request{"b": 2, "a": 1}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)
}

// countingModel records how often the predictor consults it.
type countingModel struct {
	proba        []float64
	probaCalls   int
	predictCalls int
}

func (m *countingModel) Kind() string                   { return "counting" }
func (m *countingModel) Train([][]float64, []int) error { return nil }
func (m *countingModel) NumClasses() int                { return len(m.proba) }
func (m *countingModel) NumFeatures() int               { return 2 }

func (m *countingModel) Predict([]float64) (int, float64, error) {
	m.predictCalls++
	return 0, 0, nil
}

func (m *countingModel) PredictProba([]float64) ([]float64, error) {
	m.probaCalls++
	return m.proba, nil
}

func TestDetailedEvaluatesModelOnce(t *testing.T) {
	model := &countingModel{proba: []float64{0.1, 0.7, 0.2}}
	p, err := NewPredictor(modelstore.NewArtifact(model, []string{"a", "b"}, []string{"x", "y", "z"}, nil))
	require.NoError(t, err)

	detail, err := p.Detailed(context.Background(), Request{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, model.probaCalls)
	assert.Zero(t, model.predictCalls)
	assert.Equal(t, 1, detail.Prediction)
	assert.Equal(t, "y", detail.Class)
	assert.InDelta(t, 0.7, detail.Confidence, 1e-12)
	assert.Equal(t, []float64{0.1, 0.7, 0.2}, detail.Probabilities)
}
