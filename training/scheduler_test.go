package training

import (
	"math"
	"testing"
)

func TestConstantLR(t *testing.T) {
	s := ConstantLR{}
	for _, epoch := range []int{0, 5, 100} {
		if got := s.GetLR(epoch, 1e-4); got != 1e-4 {
			t.Errorf("epoch %d: LR = %g, want 1e-4", epoch, got)
		}
	}
}

func TestStepLR(t *testing.T) {
	s := NewStepLR(10, 0.1)
	tests := []struct {
		epoch int
		want  float64
	}{
		{0, 1.0},
		{9, 1.0},
		{10, 0.1},
		{20, 0.01},
	}
	for _, tt := range tests {
		if got := s.GetLR(tt.epoch, 1.0); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("epoch %d: LR = %g, want %g", tt.epoch, got, tt.want)
		}
	}
}

func TestStepLRDefaults(t *testing.T) {
	s := NewStepLR(0, 2.0)
	if s.StepSize != 10 || s.Gamma != 0.1 {
		t.Errorf("defaults = (%d, %f), want (10, 0.1)", s.StepSize, s.Gamma)
	}
}

func TestExponentialLR(t *testing.T) {
	s := NewExponentialLR(0.5)
	if got := s.GetLR(3, 8.0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("epoch 3: LR = %g, want 1.0", got)
	}
}

func TestCosineAnnealingLR(t *testing.T) {
	s := NewCosineAnnealingLR(10, 0)

	if got := s.GetLR(0, 1.0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("epoch 0: LR = %g, want 1.0", got)
	}
	if got := s.GetLR(5, 1.0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("midpoint: LR = %g, want 0.5", got)
	}
	if got := s.GetLR(10, 1.0); got != 0 {
		t.Errorf("past TMax: LR = %g, want 0", got)
	}
}
