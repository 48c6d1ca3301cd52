package training

import (
	"fmt"

	"carvision/tensor"
)

// ConfusionMatrix accumulates classification outcomes over one or more
// batches, indexed by one-hot column.
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true][predicted]
	TotalSamples int
}

// NewConfusionMatrix creates an empty matrix over the full label space.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{NumClasses: numClasses, Matrix: matrix}
}

// Reset clears all counts.
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Add records one outcome.
func (cm *ConfusionMatrix) Add(trueClass, predClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses || predClass < 0 || predClass >= cm.NumClasses {
		return fmt.Errorf("class pair (%d, %d) out of range [0, %d)", trueClass, predClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predClass]++
	cm.TotalSamples++
	return nil
}

// Update records a whole batch: scores [n, classes] are reduced by row-wise
// argmax and compared with the one-hot labels.
func (cm *ConfusionMatrix) Update(scores, labels *tensor.Tensor) error {
	if len(scores.Shape) != 2 || scores.Shape[1] != cm.NumClasses {
		return fmt.Errorf("scores must be [n, %d], got %v", cm.NumClasses, scores.Shape)
	}
	if !tensor.SameShape(scores, labels) {
		return fmt.Errorf("labels shape %v doesn't match scores %v", labels.Shape, scores.Shape)
	}

	n := scores.Shape[0]
	for i := 0; i < n; i++ {
		pred, err := scores.Argmax(i)
		if err != nil {
			return err
		}
		actual, err := labels.Argmax(i)
		if err != nil {
			return err
		}
		if err := cm.Add(actual, pred); err != nil {
			return err
		}
	}
	return nil
}

// Accuracy is the fraction of correctly classified samples.
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// classPrecision returns the precision of one class, 0 when the class was
// never predicted.
func (cm *ConfusionMatrix) classPrecision(c int) float64 {
	tp := cm.Matrix[c][c]
	predicted := 0
	for i := 0; i < cm.NumClasses; i++ {
		predicted += cm.Matrix[i][c]
	}
	if predicted == 0 {
		return 0
	}
	return float64(tp) / float64(predicted)
}

// classRecall returns the recall of one class, 0 when the class has no
// samples.
func (cm *ConfusionMatrix) classRecall(c int) float64 {
	tp := cm.Matrix[c][c]
	actual := 0
	for j := 0; j < cm.NumClasses; j++ {
		actual += cm.Matrix[c][j]
	}
	if actual == 0 {
		return 0
	}
	return float64(tp) / float64(actual)
}

// classF1 is the harmonic mean of precision and recall, 0 when both are 0.
func (cm *ConfusionMatrix) classF1(c int) float64 {
	p := cm.classPrecision(c)
	r := cm.classRecall(c)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// MacroPrecision averages per-class precision over every class in the label
// space. Classes absent from the evaluated data contribute zero, keeping
// results comparable across runs with the same index.
func (cm *ConfusionMatrix) MacroPrecision() float64 {
	if cm.NumClasses == 0 {
		return 0
	}
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		sum += cm.classPrecision(c)
	}
	return sum / float64(cm.NumClasses)
}

// MacroRecall averages per-class recall over every class in the label space.
func (cm *ConfusionMatrix) MacroRecall() float64 {
	if cm.NumClasses == 0 {
		return 0
	}
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		sum += cm.classRecall(c)
	}
	return sum / float64(cm.NumClasses)
}

// MacroF1 averages per-class F1 over every class in the label space. Note
// this is the mean of F1 scores, not the harmonic mean of the macro
// precision and recall.
func (cm *ConfusionMatrix) MacroF1() float64 {
	if cm.NumClasses == 0 {
		return 0
	}
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		sum += cm.classF1(c)
	}
	return sum / float64(cm.NumClasses)
}
