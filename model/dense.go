package model

import (
	"fmt"

	"carvision/tensor"
)

// DenseLayer is a fully connected layer computing y = x*W + b over 2D
// batches [n, in] -> [n, out].
type DenseLayer struct {
	name    string
	inSize  int
	outSize int
	weights *Parameter // [in, out]
	bias    *Parameter // [out]

	input *tensor.Tensor
}

// NewDense creates a dense layer with Xavier-initialized weights and zero
// bias.
func NewDense(name string, inSize, outSize int) *DenseLayer {
	weights := newParameter(name+".weights", []int{inSize, outSize})
	xavierInit(weights, inSize, outSize)
	bias := newParameter(name+".bias", []int{outSize})
	return &DenseLayer{
		name:    name,
		inSize:  inSize,
		outSize: outSize,
		weights: weights,
		bias:    bias,
	}
}

func (l *DenseLayer) Name() string { return l.name }

func (l *DenseLayer) Params() []*Parameter {
	return []*Parameter{l.weights, l.bias}
}

func (l *DenseLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != l.inSize {
		return nil, fmt.Errorf("dense layer %s expects input [n, %d], got %v", l.name, l.inSize, x.Shape)
	}
	n := x.Shape[0]
	l.input = x

	out, err := tensor.Zeros([]int{n, l.outSize})
	if err != nil {
		return nil, err
	}

	w := l.weights.Data.Data
	b := l.bias.Data.Data
	for i := 0; i < n; i++ {
		row := x.Data[i*l.inSize : (i+1)*l.inSize]
		outRow := out.Data[i*l.outSize : (i+1)*l.outSize]
		copy(outRow, b)
		for k, xv := range row {
			if xv == 0 {
				continue
			}
			wRow := w[k*l.outSize : (k+1)*l.outSize]
			for j, wv := range wRow {
				outRow[j] += xv * wv
			}
		}
	}
	return out, nil
}

func (l *DenseLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("dense layer %s: Backward called before Forward", l.name)
	}
	n := l.input.Shape[0]
	if len(grad.Shape) != 2 || grad.Shape[0] != n || grad.Shape[1] != l.outSize {
		return nil, fmt.Errorf("dense layer %s expects gradient [%d, %d], got %v", l.name, n, l.outSize, grad.Shape)
	}

	w := l.weights.Data.Data
	gradW := l.weights.Grad.Data
	gradB := l.bias.Grad.Data

	gradX, err := tensor.Zeros([]int{n, l.inSize})
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		xRow := l.input.Data[i*l.inSize : (i+1)*l.inSize]
		gRow := grad.Data[i*l.outSize : (i+1)*l.outSize]
		gxRow := gradX.Data[i*l.inSize : (i+1)*l.inSize]

		if l.weights.Trainable {
			for k, xv := range xRow {
				if xv == 0 {
					continue
				}
				gwRow := gradW[k*l.outSize : (k+1)*l.outSize]
				for j, gv := range gRow {
					gwRow[j] += xv * gv
				}
			}
		}
		if l.bias.Trainable {
			for j, gv := range gRow {
				gradB[j] += gv
			}
		}
		for k := 0; k < l.inSize; k++ {
			wRow := w[k*l.outSize : (k+1)*l.outSize]
			var sum float32
			for j, gv := range gRow {
				sum += gv * wRow[j]
			}
			gxRow[k] = sum
		}
	}
	return gradX, nil
}
