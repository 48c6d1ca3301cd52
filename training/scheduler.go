package training

import "math"

// LRScheduler computes the learning rate for an epoch from the base rate.
// Schedulers are pure functions of the epoch so the trainer can log and
// apply them without extra bookkeeping.
type LRScheduler interface {
	GetLR(epoch int, baseLR float64) float64
	GetName() string
}

// ConstantLR keeps the base learning rate for the whole run.
type ConstantLR struct{}

func (ConstantLR) GetLR(epoch int, baseLR float64) float64 { return baseLR }
func (ConstantLR) GetName() string                         { return "ConstantLR" }

// StepLR multiplies the learning rate by Gamma every StepSize epochs.
type StepLR struct {
	StepSize int
	Gamma    float64
}

// NewStepLR creates a step scheduler with sane fallbacks for bad arguments.
func NewStepLR(stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 10
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLR{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLR) GetLR(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

func (s *StepLR) GetName() string { return "StepLR" }

// ExponentialLR decays the learning rate by Gamma every epoch.
type ExponentialLR struct {
	Gamma float64
}

func NewExponentialLR(gamma float64) *ExponentialLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLR{Gamma: gamma}
}

func (s *ExponentialLR) GetLR(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLR) GetName() string { return "ExponentialLR" }

// CosineAnnealingLR anneals the learning rate from the base rate to EtaMin
// over TMax epochs along a half cosine.
type CosineAnnealingLR struct {
	TMax   int
	EtaMin float64
}

func NewCosineAnnealingLR(tMax int, etaMin float64) *CosineAnnealingLR {
	if tMax <= 0 {
		tMax = 30
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLR{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLR) GetLR(epoch int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLR) GetName() string { return "CosineAnnealingLR" }
