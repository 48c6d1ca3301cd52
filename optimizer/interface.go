// Package optimizer provides gradient descent optimizers operating on model
// parameters in place.
package optimizer

import "carvision/model"

// Optimizer defines the common interface for all optimizers. An optimizer
// is bound to a fixed parameter list at construction; Step applies one
// update from the gradients accumulated since the last ZeroGrad.
type Optimizer interface {
	// Step performs a single optimization step over the trainable
	// parameters. Frozen parameters are never touched.
	Step() error

	// ZeroGrad clears all accumulated gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR updates the learning rate, e.g. from a scheduler.
	SetLR(lr float64)
}

// trainableOnly filters the parameter list once at construction.
func trainableOnly(params []*model.Parameter) []*model.Parameter {
	var out []*model.Parameter
	for _, p := range params {
		if p.Trainable {
			out = append(out, p)
		}
	}
	return out
}
