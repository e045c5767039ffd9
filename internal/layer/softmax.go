package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/loss"
)

// Softmax is a fully connected layer followed by softmax, trained against
// cross-entropy loss.
type Softmax struct {
	affine
}

// NewSoftmax creates a softmax output layer.
func NewSoftmax(in, out int) *Softmax {
	return &Softmax{affine: newAffine(in, out)}
}

func (l *Softmax) Forward(s *Scratch, x []float64) []float64 {
	l.forward(s, x)
	activations.Softmax(s.Out)
	return s.Out
}

// Backward takes the one-hot ground truth y. Softmax and cross-entropy
// together give dL/dZ = out - y.
func (l *Softmax) Backward(s *Scratch, y []float64, alpha float64) []float64 {
	mustLen("label", len(y), l.out)
	loss.CrossEntropy{}.BackwardInPlace(s.Out, y, l.dZ)
	return l.update(s, alpha)
}

func (l *Softmax) flat() {}

func (l *Softmax) String() string {
	return fmt.Sprintf("Softmax(%d -> %d)", l.in, l.out)
}
