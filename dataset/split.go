package dataset

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const defaultTestRatio = 0.2

// TrainTestSplit shuffles the rows with the given seed and splits them into a
// training and a test set. A ratio outside (0, 1) falls back to 0.2. With
// stratify set, every class is split separately so both sides keep the class
// proportions of the input.
func TrainTestSplit(ds *Dataset, testRatio float64, seed int64, stratify bool) (train, test *Dataset, err error) {
	if err := ds.Validate(); err != nil {
		return nil, nil, err
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = defaultTestRatio
	}
	rnd := rand.New(rand.NewSource(seed))

	var trainIdx, testIdx []int
	if stratify {
		trainIdx, testIdx = stratifiedIndices(ds.Labels, testRatio, rnd)
	} else {
		indices := rnd.Perm(ds.Len())
		split := int(math.Round(float64(len(indices)) * (1 - testRatio)))
		trainIdx, testIdx = indices[:split], indices[split:]
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, nil, errors.New("split leaves an empty train or test set")
	}
	return ds.Subset(trainIdx), ds.Subset(testIdx), nil
}

func stratifiedIndices(labels []int, testRatio float64, rnd *rand.Rand) (trainIdx, testIdx []int) {
	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	for _, label := range classes {
		rows := byClass[label]
		rnd.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		nTest := int(math.Round(float64(len(rows)) * testRatio))
		if nTest == 0 && len(rows) > 1 {
			nTest = 1
		}
		testIdx = append(testIdx, rows[:nTest]...)
		trainIdx = append(trainIdx, rows[nTest:]...)
	}
	rnd.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rnd.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })
	return trainIdx, testIdx
}
