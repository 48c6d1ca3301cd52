package model

import (
	"fmt"

	"carvision/tensor"
)

// DropoutLayer zeroes a random fraction of activations during training,
// scaling survivors by 1/(1-rate) so expected activation magnitude is
// unchanged. At inference it is the identity.
type DropoutLayer struct {
	name string
	rate float64
	mask []float32
}

func NewDropout(name string, rate float64) (*DropoutLayer, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %f", rate)
	}
	return &DropoutLayer{name: name, rate: rate}, nil
}

func (l *DropoutLayer) Name() string         { return l.name }
func (l *DropoutLayer) Params() []*Parameter { return nil }

func (l *DropoutLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if !training || l.rate == 0 {
		l.mask = nil
		return x, nil
	}

	scale := float32(1 / (1 - l.rate))
	l.mask = make([]float32, len(x.Data))
	out := x.Clone()
	for i := range out.Data {
		if randFloat64() < l.rate {
			l.mask[i] = 0
			out.Data[i] = 0
		} else {
			l.mask[i] = scale
			out.Data[i] *= scale
		}
	}
	return out, nil
}

func (l *DropoutLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.mask == nil {
		return grad, nil
	}
	if len(grad.Data) != len(l.mask) {
		return nil, fmt.Errorf("dropout layer %s: gradient size %d doesn't match mask %d", l.name, len(grad.Data), len(l.mask))
	}
	out := grad.Clone()
	for i := range out.Data {
		out.Data[i] *= l.mask[i]
	}
	return out, nil
}
