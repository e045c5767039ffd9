// Package loss provides the loss functions used to score and drive training.
package loss

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// BackwardInPlacer is an optional interface for loss functions that support
// in-place gradient computation to avoid allocations.
type BackwardInPlacer interface {
	BackwardInPlace(yPred, yTrue, grad []float64)
}

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the gradient of the loss w.r.t. prediction.
	// This creates a new slice and should be avoided in hot loops.
	Backward(yPred, yTrue []float64) []float64
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (m MSE) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("MSE: prediction and target must have same length")
	}
	if n == 0 {
		return 0
	}
	d := floats.Distance(yPred, yTrue, 2)
	return d * d / float64(n)
}

// Backward computes gradient: dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	m.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes gradient and stores it in the grad slice.
func (m MSE) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("MSE: slices must have same length")
	}
	floats.SubTo(grad, yPred, yTrue)
	floats.Scale(2.0/float64(n), grad)
}

// CrossEntropy is categorical cross-entropy over a probability vector.
type CrossEntropy struct{}

// Forward computes -sum(y_true * log(y_pred)), clipping predictions at eps.
func (c CrossEntropy) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("CrossEntropy: prediction and target must have same length")
	}

	const eps = 1e-10
	var sum float64
	for i := 0; i < n; i++ {
		if yTrue[i] == 0 {
			continue
		}
		sum -= yTrue[i] * math.Log(math.Max(yPred[i], eps))
	}
	return sum
}

// Backward computes the gradient for cross entropy fused with softmax,
// which simplifies to (y_pred - y_true) with respect to the logits.
func (c CrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	c.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes gradient and stores it in the grad slice.
func (c CrossEntropy) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("CrossEntropy: slices must have same length")
	}
	floats.SubTo(grad, yPred, yTrue)
}
