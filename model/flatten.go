package model

import (
	"fmt"

	"carvision/tensor"
)

// FlattenLayer collapses [n, d1, d2, ...] inputs to [n, d1*d2*...].
type FlattenLayer struct {
	name       string
	inputShape []int
}

func NewFlatten(name string) *FlattenLayer { return &FlattenLayer{name: name} }

func (l *FlattenLayer) Name() string         { return l.name }
func (l *FlattenLayer) Params() []*Parameter { return nil }

func (l *FlattenLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("flatten layer %s expects a batched tensor, got shape %v", l.name, x.Shape)
	}
	l.inputShape = make([]int, len(x.Shape))
	copy(l.inputShape, x.Shape)

	features := 1
	for _, dim := range x.Shape[1:] {
		features *= dim
	}
	return x.Reshape([]int{x.Shape[0], features})
}

func (l *FlattenLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.inputShape == nil {
		return nil, fmt.Errorf("flatten layer %s: Backward called before Forward", l.name)
	}
	return grad.Reshape(l.inputShape)
}
