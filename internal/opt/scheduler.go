package opt

import "math"

// Schedule yields the learning rate for an epoch, counted from 0.
type Schedule interface {
	Rate(epoch int) float64
}

// Constant keeps the same learning rate for every epoch.
type Constant float64

func (c Constant) Rate(int) float64 { return float64(c) }

// StepDecay multiplies the initial rate by Gamma every StepSize epochs.
type StepDecay struct {
	Initial  float64
	StepSize int
	Gamma    float64
	// Min floors the decayed rate; zero disables the floor.
	Min float64
}

// NewStepDecay creates a StepDecay schedule.
func NewStepDecay(initial float64, stepSize int, gamma float64) *StepDecay {
	return &StepDecay{
		Initial:  initial,
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepDecay) Rate(epoch int) float64 {
	if s.StepSize <= 0 || epoch < 0 {
		return s.Initial
	}
	lr := s.Initial * math.Pow(s.Gamma, float64(epoch/s.StepSize))
	if lr < s.Min {
		return s.Min
	}
	return lr
}
