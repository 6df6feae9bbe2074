package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const KindDecisionTree = "decision_tree"

// DecisionTree is a CART classifier split on gini impurity. Nodes are kept in a
// flat slice, children addressed by index.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of features considered per split; 0 means all.
	MaxFeatures int
	Seed        int64

	nodes       []TreeNode
	numClasses  int
	numFeatures int
	rnd         *rand.Rand
}

// TreeNode is one node of the flat tree. Children are indexes into the node slice.
type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"`
}

// NewDecisionTree considers every feature at each split.
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

func (dt *DecisionTree) Kind() string     { return KindDecisionTree }
func (dt *DecisionTree) NumClasses() int  { return dt.numClasses }
func (dt *DecisionTree) NumFeatures() int { return dt.numFeatures }

// Depth returns the depth of the fitted tree, 0 for a single leaf.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	return dt.TrainWeighted(features, labels, nil)
}

// TrainWeighted fits the tree with per-sample weights. A nil weights slice
// weighs every sample equally.
func (dt *DecisionTree) TrainWeighted(features [][]float64, labels []int, weights []float64) error {
	return dt.fit(features, labels, weights, countClasses(labels))
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, weights []float64, numClasses int) error {
	if err := checkTrainingData(features, labels); err != nil {
		return err
	}
	if weights == nil {
		weights = make([]float64, len(labels))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(labels) {
		return ErrShapeMismatch
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = 3
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}

	dt.numClasses = numClasses
	dt.numFeatures = len(features[0])
	dt.rnd = rand.New(rand.NewSource(dt.Seed))

	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}
	b := &treeBuilder{tree: dt, features: features, labels: labels, weights: weights}
	dt.nodes = b.buildNode(indices, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return leaf.ClassLabel, leaf.Distribution[leaf.ClassLabel], nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), leaf.Distribution...), nil
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	if len(features) != dt.numFeatures {
		return TreeNode{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), dt.numFeatures)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, ErrInvalidModel
		}
	}
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
	weights  []float64
}

func (b *treeBuilder) buildNode(indices []int, depth int) []TreeNode {
	distribution := b.distribution(indices)
	label := floats.MaxIdx(distribution)
	leaf := []TreeNode{{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   label,
		IsLeaf:       true,
		Distribution: distribution,
	}}

	if depth >= b.tree.MaxDepth || len(indices) < b.tree.MinSamplesSplit || b.isPure(indices) {
		return leaf
	}

	bestFeature, threshold, ok := b.findBestSplit(indices)
	if !ok {
		return leaf
	}

	left, right := b.splitIndices(indices, bestFeature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	leftNodes := b.buildNode(left, depth+1)
	rightNodes := b.buildNode(right, depth+1)

	root := TreeNode{
		FeatureIdx:   bestFeature,
		Threshold:    threshold,
		LeftChild:    1,
		RightChild:   1 + len(leftNodes),
		ClassLabel:   label,
		IsLeaf:       false,
		Distribution: distribution,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetNodes(leftNodes, 1)...)
	nodes = append(nodes, offsetNodes(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetNodes shifts child indices of a subtree that is placed at position
// offset of its parent's slice.
func offsetNodes(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += offset
			nodes[i].RightChild += offset
		}
	}
	return nodes
}

// findBestSplit scans every boundary between distinct sorted values of the
// candidate features and keeps the one with the lowest weighted gini.
func (b *treeBuilder) findBestSplit(indices []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	numClasses := b.tree.numClasses
	total := make([]float64, numClasses)
	var totalWeight float64
	for _, idx := range indices {
		total[b.labels[idx]] += b.weights[idx]
		totalWeight += b.weights[idx]
	}
	if totalWeight <= 0 {
		return -1, 0, false
	}

	sorted := append([]int(nil), indices...)
	left := make([]float64, numClasses)
	right := make([]float64, numClasses)

	for _, featureIdx := range b.candidateFeatures() {
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
		})
		for k := range left {
			left[k] = 0
		}
		copy(right, total)
		var leftWeight float64

		for i := 0; i < len(sorted)-1; i++ {
			idx := sorted[i]
			w := b.weights[idx]
			left[b.labels[idx]] += w
			right[b.labels[idx]] -= w
			leftWeight += w

			current := b.features[idx][featureIdx]
			next := b.features[sorted[i+1]][featureIdx]
			if current == next {
				continue
			}
			rightWeight := totalWeight - leftWeight
			impurity := weightedGini(left, leftWeight, right, rightWeight)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = (current + next) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) candidateFeatures() []int {
	n := b.tree.numFeatures
	if b.tree.MaxFeatures <= 0 || b.tree.MaxFeatures >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.tree.rnd.Perm(n)[:b.tree.MaxFeatures]
}

func (b *treeBuilder) splitIndices(indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if b.features[idx][featureIdx] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

func (b *treeBuilder) distribution(indices []int) []float64 {
	dist := make([]float64, b.tree.numClasses)
	for _, idx := range indices {
		dist[b.labels[idx]] += b.weights[idx]
	}
	if sum := floats.Sum(dist); sum > 0 {
		floats.Scale(1/sum, dist)
	} else {
		// zero total weight: fall back to raw counts
		for _, idx := range indices {
			dist[b.labels[idx]]++
		}
		floats.Scale(1/float64(len(indices)), dist)
	}
	return dist
}

func (b *treeBuilder) isPure(indices []int) bool {
	if len(indices) == 0 {
		return true
	}
	first := b.labels[indices[0]]
	for _, idx := range indices[1:] {
		if b.labels[idx] != first {
			return false
		}
	}
	return true
}

func weightedGini(left []float64, leftWeight float64, right []float64, rightWeight float64) float64 {
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(left, leftWeight) + (rightWeight/total)*gini(right, rightWeight)
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := count / total
		impurity -= prob * prob
	}
	return impurity
}

type decisionTreeState struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MaxFeatures     int        `json:"max_features"`
	Seed            int64      `json:"seed"`
	NumClasses      int        `json:"num_classes"`
	NumFeatures     int        `json:"num_features"`
	Nodes           []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(decisionTreeState{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MaxFeatures:     dt.MaxFeatures,
		Seed:            dt.Seed,
		NumClasses:      dt.numClasses,
		NumFeatures:     dt.numFeatures,
		Nodes:           dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var state decisionTreeState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if err := validateNodes(state.Nodes, state.NumClasses, state.NumFeatures); err != nil {
		return err
	}
	dt.MaxDepth = state.MaxDepth
	dt.MinSamplesSplit = state.MinSamplesSplit
	dt.MaxFeatures = state.MaxFeatures
	dt.Seed = state.Seed
	dt.numClasses = state.NumClasses
	dt.numFeatures = state.NumFeatures
	dt.nodes = state.Nodes
	return nil
}

func validateNodes(nodes []TreeNode, numClasses, numFeatures int) error {
	if len(nodes) == 0 || numClasses <= 0 || numFeatures <= 0 {
		return ErrInvalidModel
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if len(node.Distribution) != numClasses || node.ClassLabel < 0 || node.ClassLabel >= numClasses {
				return fmt.Errorf("%w: leaf %d", ErrInvalidModel, i)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return fmt.Errorf("%w: node %d feature %d", ErrInvalidModel, i, node.FeatureIdx)
		}
		// children always follow their parent, so this also rules out cycles
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("%w: node %d children", ErrInvalidModel, i)
		}
	}
	return nil
}
