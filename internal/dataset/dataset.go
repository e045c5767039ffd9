// Package dataset loads labeled image samples for training and evaluation.
package dataset

import (
	"errors"
	"fmt"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrBadMagic is returned when an IDX file does not start with the expected magic number.
	ErrBadMagic = errors.New("dataset: bad magic number")
	// ErrLabelRange is returned for a label outside [0, classes).
	ErrLabelRange = errors.New("dataset: label out of range")
	// ErrShortRecord is returned when a file ends before a record is complete.
	ErrShortRecord = errors.New("dataset: short record")
)

// LabeledSample pairs an input volume with its one-hot label.
type LabeledSample struct {
	Label []float64
	Input *tensor.Tensor
}

// Class returns the index of the hot entry of the label.
func (s LabeledSample) Class() int {
	return ArgMax(s.Label)
}

// Loader produces a full set of samples.
type Loader interface {
	Load() ([]LabeledSample, error)
}

// Static is a Loader over samples already in memory.
type Static []LabeledSample

func (s Static) Load() ([]LabeledSample, error) {
	return s, nil
}

// OneHot returns a vector of length classes with a 1 at label.
func OneHot(label, classes int) ([]float64, error) {
	if label < 0 || label >= classes {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrLabelRange, label, classes)
	}
	v := make([]float64, classes)
	v[label] = 1
	return v, nil
}

// ArgMax returns the index of the largest entry; the first one on ties.
func ArgMax(v []float64) int {
	return floats.MaxIdx(v)
}

// Split cuts samples in order: the first trainFrac of them for training and
// the rest for testing. Both results share the backing array of samples.
func Split(samples []LabeledSample, trainFrac float64) (train, test []LabeledSample) {
	n := int(float64(len(samples)) * trainFrac)
	n = min(max(n, 0), len(samples))
	return samples[:n], samples[n:]
}

// Shuffle permutes samples in place.
func Shuffle(samples []LabeledSample, rng *rand.Rand) {
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
}
