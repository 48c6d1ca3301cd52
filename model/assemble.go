package model

import (
	"fmt"
	"strings"

	"carvision/tensor"
)

// Classifier head defaults for transfer learning.
const (
	DefaultHeadUnits     = 512
	DefaultDropoutRate   = 0.5
	DefaultKeepTrainable = 10
)

// ClassificationModel pairs a feature extractor with a dense classifier
// head: flatten, dense, relu, batch norm, dropout, dense. The final layer
// emits logits; Predict applies softmax.
type ClassificationModel struct {
	extractor  FeatureExtractor
	head       []Layer
	numClasses int
	inputSize  int

	extractorTrainable bool
}

// Assemble builds a classification model on top of the given extractor for
// a square input of inputSize pixels. The head is always trainable; the
// extractor keeps whatever freeze state it was configured with.
func Assemble(extractor FeatureExtractor, numClasses, inputSize int) (*ClassificationModel, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}

	featShape, err := extractor.OutputShape(inputSize)
	if err != nil {
		return nil, fmt.Errorf("incompatible extractor: %w", err)
	}
	features := 1
	for _, dim := range featShape {
		features *= dim
	}

	dropout, err := NewDropout("head.dropout", DefaultDropoutRate)
	if err != nil {
		return nil, err
	}
	head := []Layer{
		NewFlatten("head.flatten"),
		NewDense("head.fc1", features, DefaultHeadUnits),
		NewReLU("head.relu"),
		NewBatchNorm("head.bn", DefaultHeadUnits),
		dropout,
		NewDense("head.fc2", DefaultHeadUnits, numClasses),
	}

	trainable := false
	for _, p := range extractor.Params() {
		if p.Trainable {
			trainable = true
			break
		}
	}

	return &ClassificationModel{
		extractor:          extractor,
		head:               head,
		numClasses:         numClasses,
		inputSize:          inputSize,
		extractorTrainable: trainable,
	}, nil
}

// NumClasses returns the width of the output layer.
func (m *ClassificationModel) NumClasses() int { return m.numClasses }

// InputSize returns the expected square input size.
func (m *ClassificationModel) InputSize() int { return m.inputSize }

// Forward runs the extractor and head, returning logits [n, numClasses].
func (m *ClassificationModel) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out, err := m.extractor.Forward(x, training && m.extractorTrainable)
	if err != nil {
		return nil, err
	}
	for _, layer := range m.head {
		out, err = layer.Forward(out, training)
		if err != nil {
			return nil, fmt.Errorf("head forward failed at %s: %w", layer.Name(), err)
		}
	}
	return out, nil
}

// Backward propagates the logit gradient through the head and, when the
// extractor has trainable layers, into the extractor.
func (m *ClassificationModel) Backward(grad *tensor.Tensor) error {
	out := grad
	var err error
	for i := len(m.head) - 1; i >= 0; i-- {
		out, err = m.head[i].Backward(out)
		if err != nil {
			return fmt.Errorf("head backward failed at %s: %w", m.head[i].Name(), err)
		}
	}
	if m.extractorTrainable {
		if _, err := m.extractor.Backward(out); err != nil {
			return err
		}
	}
	return nil
}

// Params returns all model parameters, extractor first.
func (m *ClassificationModel) Params() []*Parameter {
	params := append([]*Parameter(nil), m.extractor.Params()...)
	for _, layer := range m.head {
		params = append(params, layer.Params()...)
	}
	return params
}

// TrainableParams returns the parameters an optimizer should update.
func (m *ClassificationModel) TrainableParams() []*Parameter {
	var params []*Parameter
	for _, p := range m.Params() {
		if p.Trainable {
			params = append(params, p)
		}
	}
	return params
}

// Predict runs inference and returns softmax probabilities [n, numClasses].
func (m *ClassificationModel) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	logits, err := m.Forward(x, false)
	if err != nil {
		return nil, err
	}
	return Softmax(logits)
}

// Snapshot deep-copies every parameter value, keyed by parameter name.
func (m *ClassificationModel) Snapshot() map[string]*tensor.Tensor {
	snap := make(map[string]*tensor.Tensor)
	for _, p := range m.Params() {
		snap[p.Name] = p.Data.Clone()
	}
	return snap
}

// Restore loads parameter values captured by Snapshot.
func (m *ClassificationModel) Restore(snap map[string]*tensor.Tensor) error {
	for _, p := range m.Params() {
		saved, ok := snap[p.Name]
		if !ok {
			return fmt.Errorf("snapshot is missing parameter %s", p.Name)
		}
		if !tensor.SameShape(saved, p.Data) {
			return fmt.Errorf("snapshot shape %v for %s doesn't match %v", saved.Shape, p.Name, p.Data.Shape)
		}
		copy(p.Data.Data, saved.Data)
	}
	return nil
}

// Summary returns a short human-readable description of the model.
func (m *ClassificationModel) Summary() string {
	var sb strings.Builder
	total, trainable := 0, 0
	for _, p := range m.Params() {
		total += p.Data.NumElems()
		if p.Trainable {
			trainable += p.Data.NumElems()
		}
	}
	fmt.Fprintf(&sb, "ClassificationModel: %dx%d input, %d classes\n", m.inputSize, m.inputSize, m.numClasses)
	fmt.Fprintf(&sb, "  parameters: %d total, %d trainable", total, trainable)
	return sb.String()
}
