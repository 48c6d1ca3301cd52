package model

import "carvision/tensor"

// Layer is one differentiable stage of the network. Forward caches whatever
// the matching Backward needs, so a layer handles one batch at a time:
// Forward, then optionally Backward on the gradient of its output.
type Layer interface {
	Name() string

	// Forward computes the layer output. The training flag switches layers
	// with distinct train and inference behavior (dropout, batch norm).
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)

	// Backward takes the gradient of the loss with respect to the layer
	// output and returns the gradient with respect to its input, adding
	// parameter gradients to each trainable Parameter's Grad.
	Backward(grad *tensor.Tensor) (*tensor.Tensor, error)

	// Params returns the layer's parameters. Stateless layers return nil.
	Params() []*Parameter
}
