package tensor

import (
	"fmt"
)

// Tensor is a dense float32 array with an explicit shape. All pipeline data
// (image batches, label batches, layer activations) flows through this type.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New creates a tensor with the given shape backed by the provided data.
// The data length must match the product of the shape dimensions.
func New(shape []int, data []float32) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("data size %d doesn't match shape %v (expected %d)", len(data), shape, n)
	}
	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)
	return &Tensor{Shape: shapeCopy, Data: data}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape []int) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)
	return &Tensor{Shape: shapeCopy, Data: make([]float32, n)}, nil
}

func checkShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("shape cannot be empty")
	}
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("invalid shape dimension: %d", dim)
		}
		n *= dim
	}
	return n, nil
}

// NumElems returns the total number of elements.
func (t *Tensor) NumElems() int {
	return len(t.Data)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	shapeCopy := make([]int, len(t.Shape))
	copy(shapeCopy, t.Shape)
	dataCopy := make([]float32, len(t.Data))
	copy(dataCopy, t.Data)
	return &Tensor{Shape: shapeCopy, Data: dataCopy}
}

// Reshape returns a view of the tensor with a new shape. The element count
// must be unchanged; the underlying data is shared.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elems) to %v (%d elems)", t.Shape, len(t.Data), shape, n)
	}
	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)
	return &Tensor{Shape: shapeCopy, Data: t.Data}, nil
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Argmax returns the index of the largest value in row i of a 2D tensor
// [rows, cols]. Ties resolve to the lowest index.
func (t *Tensor) Argmax(row int) (int, error) {
	if len(t.Shape) != 2 {
		return 0, fmt.Errorf("Argmax requires a 2D tensor, got shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	if row < 0 || row >= rows {
		return 0, fmt.Errorf("row %d out of range [0, %d)", row, rows)
	}
	maxIdx := 0
	maxVal := t.Data[row*cols]
	for j := 1; j < cols; j++ {
		if t.Data[row*cols+j] > maxVal {
			maxVal = t.Data[row*cols+j]
			maxIdx = j
		}
	}
	return maxIdx, nil
}
