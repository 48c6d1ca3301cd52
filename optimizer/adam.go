package optimizer

import (
	"fmt"
	"math"

	"carvision/model"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64 // Momentum decay (typically 0.9)
	Beta2        float64 // Variance decay (typically 0.999)
	Epsilon      float64 // Small constant to prevent division by zero
}

// DefaultAdamConfig returns the standard Adam hyperparameters with the
// fine-tuning learning rate used for transfer learning.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 1e-4,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates, kept per trainable parameter.
type Adam struct {
	config AdamConfig
	params []*model.Parameter

	momentum [][]float64
	variance [][]float64
	step     int
}

// NewAdam creates an Adam optimizer over the trainable subset of params.
func NewAdam(config AdamConfig, params []*model.Parameter) (*Adam, error) {
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", config.LearningRate)
	}
	trainable := trainableOnly(params)
	if len(trainable) == 0 {
		return nil, fmt.Errorf("no trainable parameters")
	}

	momentum := make([][]float64, len(trainable))
	variance := make([][]float64, len(trainable))
	for i, p := range trainable {
		momentum[i] = make([]float64, p.Data.NumElems())
		variance[i] = make([]float64, p.Data.NumElems())
	}

	return &Adam{
		config:   config,
		params:   trainable,
		momentum: momentum,
		variance: variance,
	}, nil
}

func (a *Adam) Step() error {
	a.step++
	bc1 := 1 - math.Pow(a.config.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.config.Beta2, float64(a.step))

	for i, p := range a.params {
		m := a.momentum[i]
		v := a.variance[i]
		for j := range p.Data.Data {
			g := float64(p.Grad.Data[j])
			m[j] = a.config.Beta1*m[j] + (1-a.config.Beta1)*g
			v[j] = a.config.Beta2*v[j] + (1-a.config.Beta2)*g*g

			mHat := m[j] / bc1
			vHat := v[j] / bc2
			p.Data.Data[j] -= float32(a.config.LearningRate * mHat / (math.Sqrt(vHat) + a.config.Epsilon))
		}
	}
	return nil
}

func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *Adam) GetLR() float64 { return a.config.LearningRate }

func (a *Adam) SetLR(lr float64) { a.config.LearningRate = lr }

// StepCount returns the number of updates applied so far.
func (a *Adam) StepCount() int { return a.step }
