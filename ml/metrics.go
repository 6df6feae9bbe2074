package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ClassMetrics holds per-class scores; zero denominators give zero scores.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation is the result of scoring a model on a labelled set.
type Evaluation struct {
	Accuracy          float64        `json:"accuracy"`
	Confusion         [][]int        `json:"confusion"`
	Classes           []ClassMetrics `json:"classes"`
	WeightedPrecision float64        `json:"weighted_precision"`
	WeightedRecall    float64        `json:"weighted_recall"`
	WeightedF1        float64        `json:"weighted_f1"`
	Samples           int            `json:"samples"`
}

// Accuracy is the fraction of predicted labels equal to truth.
func Accuracy(truth, predicted []int) float64 {
	if len(truth) == 0 || len(truth) != len(predicted) {
		return 0
	}
	var correct int
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// ConfusionMatrix counts predictions; rows are true classes, columns predicted.
func ConfusionMatrix(truth, predicted []int, numClasses int) (*mat.Dense, error) {
	if len(truth) != len(predicted) {
		return nil, ErrShapeMismatch
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("numClasses must be positive, got %d", numClasses)
	}
	cm := mat.NewDense(numClasses, numClasses, nil)
	for i := range truth {
		t, p := truth[i], predicted[i]
		if t < 0 || t >= numClasses || p < 0 || p >= numClasses {
			return nil, fmt.Errorf("label out of range at %d: truth %d, predicted %d", i, t, p)
		}
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, nil
}

// ClassificationReport derives per-class precision, recall and F1 from a
// confusion matrix.
func ClassificationReport(cm *mat.Dense) []ClassMetrics {
	n, _ := cm.Dims()
	report := make([]ClassMetrics, n)
	for k := 0; k < n; k++ {
		tp := cm.At(k, k)
		var predicted, actual float64
		for j := 0; j < n; j++ {
			predicted += cm.At(j, k)
			actual += cm.At(k, j)
		}
		m := ClassMetrics{Support: int(actual)}
		if predicted > 0 {
			m.Precision = tp / predicted
		}
		if actual > 0 {
			m.Recall = tp / actual
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report[k] = m
	}
	return report
}

// Score returns the accuracy of model on the given samples.
func Score(model Classifier, features [][]float64, labels []int) (float64, error) {
	eval, err := Evaluate(model, features, labels)
	if err != nil {
		return 0, err
	}
	return eval.Accuracy, nil
}

// Evaluate predicts every row and reports accuracy, the confusion matrix and
// per-class precision, recall and F1.
func Evaluate(model Classifier, features [][]float64, labels []int) (*Evaluation, error) {
	if err := checkTrainingData(features, labels); err != nil {
		return nil, err
	}
	predicted := make([]int, len(features))
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("predict sample %d: %w", i, err)
		}
		predicted[i] = label
	}

	numClasses := max(model.NumClasses(), countClasses(labels))
	cm, err := ConfusionMatrix(labels, predicted, numClasses)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		Accuracy:  Accuracy(labels, predicted),
		Confusion: denseToCounts(cm),
		Classes:   ClassificationReport(cm),
		Samples:   len(labels),
	}
	for _, c := range eval.Classes {
		w := float64(c.Support) / float64(len(labels))
		eval.WeightedPrecision += c.Precision * w
		eval.WeightedRecall += c.Recall * w
		eval.WeightedF1 += c.F1 * w
	}
	return eval, nil
}

func denseToCounts(m *mat.Dense) [][]int {
	r, c := m.Dims()
	out := make([][]int, r)
	for i := range out {
		out[i] = make([]int, c)
		for j := range out[i] {
			out[i][j] = int(m.At(i, j))
		}
	}
	return out
}
