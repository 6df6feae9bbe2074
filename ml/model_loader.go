package ml

import (
	"fmt"
)

// Params configures NewClassifier. Zero values select each model's defaults.
type Params struct {
	MaxDepth        int     `yaml:"max_depth" json:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split" json:"min_samples_split"`
	MaxFeatures     int     `yaml:"max_features" json:"max_features"`
	NumEstimators   int     `yaml:"num_estimators" json:"num_estimators"`
	LearningRate    float64 `yaml:"learning_rate" json:"learning_rate"`
	Workers         int     `yaml:"workers" json:"workers"`
	Seed            int64   `yaml:"seed" json:"seed"`
}

// Kinds lists the supported model types.
func Kinds() []string {
	return []string{KindDecisionTree, KindRandomForest, KindAdaBoost}
}

// NewClassifier returns an untrained model of kind. An empty kind means a random forest.
func NewClassifier(kind string, params Params) (Classifier, error) {
	switch kind {
	case KindDecisionTree:
		return &DecisionTree{
			MaxDepth:        params.MaxDepth,
			MinSamplesSplit: params.MinSamplesSplit,
			MaxFeatures:     params.MaxFeatures,
			Seed:            params.Seed,
		}, nil
	case KindRandomForest, "":
		return &RandomForest{
			NumTrees:        params.NumEstimators,
			MaxDepth:        params.MaxDepth,
			MinSamplesSplit: params.MinSamplesSplit,
			MaxFeatures:     params.MaxFeatures,
			Workers:         params.Workers,
			Seed:            params.Seed,
		}, nil
	case KindAdaBoost:
		return &AdaBoost{
			NumEstimators: params.NumEstimators,
			MaxDepth:      params.MaxDepth,
			LearningRate:  params.LearningRate,
			Seed:          params.Seed,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// LoadModel restores a trained model of the given kind from its JSON state.
func LoadModel(kind string, payload []byte) (Classifier, error) {
	var model Classifier
	switch kind {
	case KindDecisionTree:
		model = &DecisionTree{}
	case KindRandomForest:
		model = &RandomForest{}
	case KindAdaBoost:
		model = &AdaBoost{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if err := json.Unmarshal(payload, model); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return model, nil
}
