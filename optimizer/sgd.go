package optimizer

import (
	"fmt"

	"carvision/model"
)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64 // 0 disables the velocity term
}

// DefaultSGDConfig returns classic SGD with momentum 0.9.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
	}
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	config   SGDConfig
	params   []*model.Parameter
	velocity [][]float64
}

// NewSGD creates an SGD optimizer over the trainable subset of params.
func NewSGD(config SGDConfig, params []*model.Parameter) (*SGD, error) {
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", config.LearningRate)
	}
	trainable := trainableOnly(params)
	if len(trainable) == 0 {
		return nil, fmt.Errorf("no trainable parameters")
	}

	velocity := make([][]float64, len(trainable))
	for i, p := range trainable {
		velocity[i] = make([]float64, p.Data.NumElems())
	}

	return &SGD{config: config, params: trainable, velocity: velocity}, nil
}

func (s *SGD) Step() error {
	for i, p := range s.params {
		v := s.velocity[i]
		for j := range p.Data.Data {
			g := float64(p.Grad.Data[j])
			v[j] = s.config.Momentum*v[j] - s.config.LearningRate*g
			p.Data.Data[j] += float32(v[j])
		}
	}
	return nil
}

func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

func (s *SGD) GetLR() float64 { return s.config.LearningRate }

func (s *SGD) SetLR(lr float64) { s.config.LearningRate = lr }
