package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winemodel/dataset"
)

func wineSplit(t *testing.T) (train, test *dataset.Dataset) {
	t.Helper()
	train, test, err := dataset.TrainTestSplit(dataset.Wine(), 0.25, 7, true)
	require.NoError(t, err)
	return train, test
}

func TestRandomForestOnWine(t *testing.T) {
	train, test := wineSplit(t)

	forest := NewRandomForest(50, 8, 1)
	require.NoError(t, forest.Train(train.Features, train.Labels))
	assert.Equal(t, 50, forest.Trees())
	assert.Equal(t, 3, forest.NumClasses())
	assert.Equal(t, 13, forest.NumFeatures())
	assert.Equal(t, 3, forest.MaxFeatures)

	accuracy, err := Score(forest, test.Features, test.Labels)
	require.NoError(t, err)
	assert.Greater(t, accuracy, 0.85)

	proba, err := forest.PredictProba(test.Features[0])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, proba[0]+proba[1]+proba[2], 1e-9)

	importance := forest.FeatureImportance()
	assert.Len(t, importance, 13)
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	train, test := wineSplit(t)

	serial := &RandomForest{NumTrees: 20, MaxDepth: 6, Workers: 1, Seed: 9}
	parallel := &RandomForest{NumTrees: 20, MaxDepth: 6, Workers: 8, Seed: 9}
	require.NoError(t, serial.Train(train.Features, train.Labels))
	require.NoError(t, parallel.Train(train.Features, train.Labels))

	for _, row := range test.Features {
		a, err := serial.PredictProba(row)
		require.NoError(t, err)
		b, err := parallel.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestRandomForestMoreWorkersThanTrees(t *testing.T) {
	train, _ := wineSplit(t)

	forest := &RandomForest{NumTrees: 3, MaxDepth: 4, Workers: 64, Seed: 5}
	require.NoError(t, forest.Train(train.Features, train.Labels))
	assert.Equal(t, 3, forest.Trees())
	for _, tree := range forest.trees {
		assert.NotNil(t, tree)
	}
}

func TestRandomForestJSONRoundTrip(t *testing.T) {
	train, test := wineSplit(t)
	forest := NewRandomForest(10, 5, 3)
	require.NoError(t, forest.Train(train.Features, train.Labels))

	payload, err := json.Marshal(forest)
	require.NoError(t, err)
	restored, err := LoadModel(KindRandomForest, payload)
	require.NoError(t, err)

	for _, row := range test.Features {
		want, wantConf, err := forest.Predict(row)
		require.NoError(t, err)
		got, gotConf, err := restored.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.InDelta(t, wantConf, gotConf, 1e-12)
	}
}

func TestRandomForestUntrained(t *testing.T) {
	_, err := (&RandomForest{}).PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = json.Marshal(&RandomForest{})
	assert.Error(t, err)
}

func TestAdaBoostOnWine(t *testing.T) {
	train, test := wineSplit(t)

	boost := NewAdaBoost(30, 2)
	require.NoError(t, boost.Train(train.Features, train.Labels))
	assert.Positive(t, boost.Estimators())

	accuracy, err := Score(boost, test.Features, test.Labels)
	require.NoError(t, err)
	assert.Greater(t, accuracy, 0.8)

	payload, err := json.Marshal(boost)
	require.NoError(t, err)
	restored, err := LoadModel(KindAdaBoost, payload)
	require.NoError(t, err)
	for _, row := range test.Features {
		want, _, _ := boost.Predict(row)
		got, _, err := restored.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAdaBoostStopsOnPerfectFit(t *testing.T) {
	features := [][]float64{{0}, {1}, {10}, {11}}
	labels := []int{0, 0, 1, 1}

	boost := NewAdaBoost(10, 1)
	require.NoError(t, boost.Train(features, labels))
	assert.Equal(t, 1, boost.Estimators())

	label, confidence, err := boost.Predict([]float64{10.5})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.InDelta(t, 1.0, confidence, 1e-9)
}

func TestAdaBoostNeedsTwoClasses(t *testing.T) {
	err := NewAdaBoost(5, 1).Train([][]float64{{1}, {2}}, []int{0, 0})
	assert.Error(t, err)
}

func TestNewClassifierKinds(t *testing.T) {
	for _, kind := range Kinds() {
		model, err := NewClassifier(kind, Params{MaxDepth: 3, NumEstimators: 5, Seed: 1})
		require.NoError(t, err)
		assert.Equal(t, kind, model.Kind())
	}

	model, err := NewClassifier("", Params{})
	require.NoError(t, err)
	assert.Equal(t, KindRandomForest, model.Kind())

	_, err = NewClassifier("svm", Params{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = LoadModel("svm", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}
