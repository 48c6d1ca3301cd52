package training

import (
	"fmt"

	"carvision/tensor"
)

// Metrics summarizes one evaluation pass.
type Metrics struct {
	Loss           float64
	Accuracy       float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	Samples        int
	Confusion      *ConfusionMatrix
}

func (m *Metrics) String() string {
	return fmt.Sprintf("loss=%.4f acc=%.4f macro_p=%.4f macro_r=%.4f macro_f1=%.4f (%d samples)",
		m.Loss, m.Accuracy, m.MacroPrecision, m.MacroRecall, m.MacroF1, m.Samples)
}

// Predictor is the model surface evaluation needs.
type Predictor interface {
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
}

// Evaluator runs a trained model over a deterministic batch source and
// reports loss, accuracy, and macro-averaged precision, recall, and F1.
type Evaluator struct {
	model      Predictor
	numClasses int
	loss       CategoricalCrossEntropy
}

// NewEvaluator creates an evaluator over the given label-space width.
func NewEvaluator(m Predictor, numClasses int) (*Evaluator, error) {
	if m == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}
	return &Evaluator{model: m, numClasses: numClasses}, nil
}

// Evaluate consumes exactly one pass of the source. The source should feed
// in fixed order without augmentation so results are reproducible.
func (e *Evaluator) Evaluate(data BatchSource) (*Metrics, error) {
	data.Reset()
	cm := NewConfusionMatrix(e.numClasses)
	var totalLoss float64

	steps := data.Steps()
	if steps == 0 {
		return nil, fmt.Errorf("evaluation source produced no batches")
	}

	for step := 0; step < steps; step++ {
		images, labels, err := data.Next()
		if err != nil {
			return nil, err
		}
		logits, err := e.model.Forward(images, false)
		if err != nil {
			return nil, err
		}
		loss, _, err := e.loss.Loss(logits, labels)
		if err != nil {
			return nil, err
		}
		totalLoss += loss
		if err := cm.Update(logits, labels); err != nil {
			return nil, err
		}
	}

	return &Metrics{
		Loss:           totalLoss / float64(steps),
		Accuracy:       cm.Accuracy(),
		MacroPrecision: cm.MacroPrecision(),
		MacroRecall:    cm.MacroRecall(),
		MacroF1:        cm.MacroF1(),
		Samples:        cm.TotalSamples,
		Confusion:      cm,
	}, nil
}
