package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

const KindRandomForest = "random_forest"

// RandomForest averages the class probabilities of decision trees grown on
// bootstrap samples with a random subset of features considered per split.
type RandomForest struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures defaults to sqrt of the feature count.
	MaxFeatures int
	// Workers bounds how many trees are grown at once; 0 means GOMAXPROCS.
	Workers int
	Seed    int64

	trees       []*DecisionTree
	numClasses  int
	numFeatures int
}

// NewRandomForest uses sqrt(features) per split and GOMAXPROCS workers.
func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth, MinSamplesSplit: 2, Seed: seed}
}

func (rf *RandomForest) Kind() string     { return KindRandomForest }
func (rf *RandomForest) NumClasses() int  { return rf.numClasses }
func (rf *RandomForest) NumFeatures() int { return rf.numFeatures }
func (rf *RandomForest) Trees() int       { return len(rf.trees) }

// Train grows the forest. Per-tree seeds are drawn from Seed before any tree is
// grown, so the result does not depend on Workers or scheduling.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := checkTrainingData(features, labels); err != nil {
		return err
	}
	if rf.NumTrees <= 0 {
		rf.NumTrees = 100
	}
	if rf.MaxDepth <= 0 {
		rf.MaxDepth = 10
	}
	numFeatures := len(features[0])
	if rf.MaxFeatures <= 0 {
		rf.MaxFeatures = max(1, int(math.Sqrt(float64(numFeatures))))
	}
	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, rf.NumTrees)

	numClasses := countClasses(labels)
	seeder := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NumTrees)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	trees := make([]*DecisionTree, rf.NumTrees)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			tree, err := rf.growTree(features, labels, numClasses, seeds[i])
			if err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.trees = trees
	rf.numClasses = numClasses
	rf.numFeatures = numFeatures
	return nil
}

func (rf *RandomForest) growTree(features [][]float64, labels []int, numClasses int, seed int64) (*DecisionTree, error) {
	rnd := rand.New(rand.NewSource(seed))
	n := len(labels)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		idx := rnd.Intn(n)
		sampleX[i] = features[idx]
		sampleY[i] = labels[idx]
	}

	tree := &DecisionTree{
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MaxFeatures:     rf.MaxFeatures,
		Seed:            rnd.Int63(),
	}
	if err := tree.fit(sampleX, sampleY, nil, numClasses); err != nil {
		return nil, err
	}
	return tree, nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := floats.MaxIdx(proba)
	return label, proba[label], nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	proba := make([]float64, rf.numClasses)
	for _, tree := range rf.trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		floats.Add(proba, p)
	}
	floats.Scale(1/float64(len(rf.trees)), proba)
	return proba, nil
}

// FeatureImportance returns, per feature, the share of splits across all trees
// that use it.
func (rf *RandomForest) FeatureImportance() []float64 {
	importance := make([]float64, rf.numFeatures)
	for _, tree := range rf.trees {
		for _, node := range tree.nodes {
			if !node.IsLeaf {
				importance[node.FeatureIdx]++
			}
		}
	}
	if sum := floats.Sum(importance); sum > 0 {
		floats.Scale(1/sum, importance)
	}
	return importance
}

type randomForestState struct {
	NumTrees        int             `json:"num_trees"`
	MaxDepth        int             `json:"max_depth"`
	MinSamplesSplit int             `json:"min_samples_split"`
	MaxFeatures     int             `json:"max_features"`
	Seed            int64           `json:"seed"`
	NumClasses      int             `json:"num_classes"`
	NumFeatures     int             `json:"num_features"`
	Trees           []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(randomForestState{
		NumTrees:        rf.NumTrees,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MaxFeatures:     rf.MaxFeatures,
		Seed:            rf.Seed,
		NumClasses:      rf.numClasses,
		NumFeatures:     rf.numFeatures,
		Trees:           rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var state randomForestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidModel)
	}
	for i, tree := range state.Trees {
		if tree == nil || tree.numClasses != state.NumClasses || tree.numFeatures != state.NumFeatures {
			return fmt.Errorf("%w: tree %d does not match forest shape", ErrInvalidModel, i)
		}
	}
	rf.NumTrees = state.NumTrees
	rf.MaxDepth = state.MaxDepth
	rf.MinSamplesSplit = state.MinSamplesSplit
	rf.MaxFeatures = state.MaxFeatures
	rf.Seed = state.Seed
	rf.numClasses = state.NumClasses
	rf.numFeatures = state.NumFeatures
	rf.trees = state.Trees
	return nil
}
