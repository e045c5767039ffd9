// Package opt provides the parameter update rule and learning-rate schedules.
package opt

import "gonum.org/v1/gonum/floats"

// Optimizer updates network parameters based on gradients.
type Optimizer interface {
	// Step computes updated parameters: params - lr * gradients
	// Returns a new slice with updated values
	Step(params, gradients []float64) []float64

	// StepInPlace updates params in-place: params = params - lr * gradients
	StepInPlace(params, gradients []float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// Step computes updated parameters: params - lr * gradients
func (s SGD) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	copy(result, params)
	s.StepInPlace(result, gradients)
	return result
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s SGD) StepInPlace(params, gradients []float64) {
	if s.LearningRate == 0 {
		return
	}
	floats.AddScaled(params, -s.LearningRate, gradients)
}
