package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const KindAdaBoost = "adaboost"

// minimalWeight zeroes sample weights that only survive through rounding.
const minimalWeight = 1e-7

// AdaBoost is multi-class boosting (SAMME) over shallow weighted decision trees.
type AdaBoost struct {
	NumEstimators int
	MaxDepth      int
	LearningRate  float64
	Seed          int64

	estimators  []*DecisionTree
	alphas      []float64
	numClasses  int
	numFeatures int
}

// NewAdaBoost boosts up to numEstimators trees of maxDepth.
func NewAdaBoost(numEstimators, maxDepth int) *AdaBoost {
	return &AdaBoost{NumEstimators: numEstimators, MaxDepth: maxDepth, LearningRate: 1}
}

func (ab *AdaBoost) Kind() string     { return KindAdaBoost }
func (ab *AdaBoost) NumClasses() int  { return ab.numClasses }
func (ab *AdaBoost) NumFeatures() int { return ab.numFeatures }
func (ab *AdaBoost) Estimators() int  { return len(ab.estimators) }

// Train runs SAMME, stopping early once an estimator fits perfectly.
func (ab *AdaBoost) Train(features [][]float64, labels []int) error {
	if err := checkTrainingData(features, labels); err != nil {
		return err
	}
	if ab.NumEstimators <= 0 {
		ab.NumEstimators = 50
	}
	if ab.MaxDepth <= 0 {
		ab.MaxDepth = 1
	}
	if ab.LearningRate <= 0 {
		ab.LearningRate = 1
	}

	numClasses := countClasses(labels)
	if numClasses < 2 {
		return errors.New("adaboost needs at least two classes")
	}
	n := len(labels)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}

	ab.estimators = nil
	ab.alphas = nil
	for step := 0; step < ab.NumEstimators; step++ {
		tree := &DecisionTree{MaxDepth: ab.MaxDepth, MinSamplesSplit: 2, Seed: ab.Seed + int64(step)}
		if err := tree.fit(features, labels, weights, numClasses); err != nil {
			return fmt.Errorf("estimator %d: %w", step, err)
		}

		miss := make([]bool, n)
		var errRate float64
		for i, row := range features {
			predicted, _, err := tree.Predict(row)
			if err != nil {
				return err
			}
			if predicted != labels[i] {
				miss[i] = true
				errRate += weights[i]
			}
		}

		if errRate <= 0 {
			// perfect fit: keep it and stop boosting
			ab.estimators = append(ab.estimators, tree)
			ab.alphas = append(ab.alphas, 1)
			break
		}
		if errRate >= 1-1/float64(numClasses) {
			// no better than chance
			if len(ab.estimators) == 0 {
				return errors.New("first estimator is no better than chance")
			}
			break
		}

		alpha := ab.LearningRate * (math.Log((1-errRate)/errRate) + math.Log(float64(numClasses)-1))
		ab.estimators = append(ab.estimators, tree)
		ab.alphas = append(ab.alphas, alpha)

		for i := range weights {
			if miss[i] {
				weights[i] *= math.Exp(alpha)
			}
			if weights[i] < minimalWeight {
				weights[i] = 0
			}
		}
		sum := floats.Sum(weights)
		if sum <= 0 {
			break
		}
		floats.Scale(1/sum, weights)
	}

	ab.numClasses = numClasses
	ab.numFeatures = len(features[0])
	return nil
}

func (ab *AdaBoost) Predict(features []float64) (int, float64, error) {
	proba, err := ab.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := floats.MaxIdx(proba)
	return label, proba[label], nil
}

// PredictProba returns each class's share of the total estimator weight that
// voted for it.
func (ab *AdaBoost) PredictProba(features []float64) ([]float64, error) {
	if len(ab.estimators) == 0 {
		return nil, ErrNotTrained
	}
	votes := make([]float64, ab.numClasses)
	for i, tree := range ab.estimators {
		label, _, err := tree.Predict(features)
		if err != nil {
			return nil, err
		}
		votes[label] += ab.alphas[i]
	}
	if sum := floats.Sum(votes); sum > 0 {
		floats.Scale(1/sum, votes)
	}
	return votes, nil
}

type adaBoostState struct {
	NumEstimators int             `json:"num_estimators"`
	MaxDepth      int             `json:"max_depth"`
	LearningRate  float64         `json:"learning_rate"`
	Seed          int64           `json:"seed"`
	NumClasses    int             `json:"num_classes"`
	NumFeatures   int             `json:"num_features"`
	Estimators    []*DecisionTree `json:"estimators"`
	Alphas        []float64       `json:"alphas"`
}

func (ab *AdaBoost) MarshalJSON() ([]byte, error) {
	if len(ab.estimators) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(adaBoostState{
		NumEstimators: ab.NumEstimators,
		MaxDepth:      ab.MaxDepth,
		LearningRate:  ab.LearningRate,
		Seed:          ab.Seed,
		NumClasses:    ab.numClasses,
		NumFeatures:   ab.numFeatures,
		Estimators:    ab.estimators,
		Alphas:        ab.alphas,
	})
}

func (ab *AdaBoost) UnmarshalJSON(data []byte) error {
	var state adaBoostState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Estimators) == 0 || len(state.Estimators) != len(state.Alphas) {
		return fmt.Errorf("%w: %d estimators, %d weights", ErrInvalidModel, len(state.Estimators), len(state.Alphas))
	}
	for i, tree := range state.Estimators {
		if tree == nil || tree.numClasses != state.NumClasses || tree.numFeatures != state.NumFeatures {
			return fmt.Errorf("%w: estimator %d does not match ensemble shape", ErrInvalidModel, i)
		}
	}
	ab.NumEstimators = state.NumEstimators
	ab.MaxDepth = state.MaxDepth
	ab.LearningRate = state.LearningRate
	ab.Seed = state.Seed
	ab.numClasses = state.NumClasses
	ab.numFeatures = state.NumFeatures
	ab.estimators = state.Estimators
	ab.alphas = state.Alphas
	return nil
}
