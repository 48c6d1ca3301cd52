package model

import (
	"fmt"
	"math"

	"carvision/tensor"
)

// ReLULayer applies max(0, x) element-wise.
type ReLULayer struct {
	name  string
	input *tensor.Tensor
}

func NewReLU(name string) *ReLULayer { return &ReLULayer{name: name} }

func (l *ReLULayer) Name() string         { return l.name }
func (l *ReLULayer) Params() []*Parameter { return nil }

func (l *ReLULayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	l.input = x
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

func (l *ReLULayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("relu layer %s: Backward called before Forward", l.name)
	}
	if !tensor.SameShape(grad, l.input) {
		return nil, fmt.Errorf("relu layer %s: gradient shape %v doesn't match input %v", l.name, grad.Shape, l.input.Shape)
	}
	out := grad.Clone()
	for i, v := range l.input.Data {
		if v <= 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

// Softmax converts a 2D tensor of logits [n, classes] to row-wise
// probabilities. It is applied at prediction time only; during training the
// loss fuses softmax with cross-entropy for a stable gradient.
func Softmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("softmax requires a 2D tensor, got shape %v", logits.Shape)
	}
	n, classes := logits.Shape[0], logits.Shape[1]
	out := logits.Clone()
	for i := 0; i < n; i++ {
		row := out.Data[i*classes : (i+1)*classes]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - maxVal))
			row[j] = float32(e)
			sum += e
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
	return out, nil
}
