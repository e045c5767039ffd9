// Package layer provides the spatial and flat layers of a convolutional network.
//
// Layers hold parameters only. Per-sample activations and gradients live in
// scratch objects created by NewScratch and owned by the caller, so a layer
// can be driven by several scratches as long as they are not used at once.
package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// Spatial is a layer mapping one 3-D volume to another.
// The implementations are Conv2d and Maxpool2d.
type Spatial interface {
	InputSize() tensor.Size
	OutputSize() tensor.Size
	NewScratch() *Scratch2d

	// Forward copies x into s.X and computes s.Out.
	Forward(s *Scratch2d, x *tensor.Tensor) *tensor.Tensor
	// Backward takes dL/dOut, updates parameters with step alpha and
	// returns dL/dX (held in s.DX).
	Backward(s *Scratch2d, grad *tensor.Tensor, alpha float64) *tensor.Tensor

	ParamCount() int
	String() string

	spatial()
}

// Flat is a layer mapping one vector to another.
// The implementations are Dense and Softmax.
type Flat interface {
	InputSize() int
	OutputSize() int
	NewScratch() *Scratch

	// Forward copies x into s.X and computes s.Out.
	Forward(s *Scratch, x []float64) []float64
	// Backward takes the upstream signal, updates parameters with step alpha
	// and returns dL/dX (held in s.DX). For Dense the signal is dL/dOut;
	// for Softmax it is the one-hot ground truth.
	Backward(s *Scratch, grad []float64, alpha float64) []float64

	ParamCount() int
	String() string

	flat()
}

// Initializer is implemented by layers with trainable parameters.
type Initializer interface {
	// Init redraws every parameter. A nil src uses the global generator.
	Init(src rand.Source)
}

// Scratch2d holds the step-scoped buffers of a spatial layer.
type Scratch2d struct {
	X    *tensor.Tensor
	Out  *tensor.Tensor
	DX   *tensor.Tensor
	Mask *tensor.Tensor // argmax routing, max-pool only
}

func newScratch2d(in, out tensor.Size) *Scratch2d {
	return &Scratch2d{
		X:   tensor.NewSize(in),
		Out: tensor.NewSize(out),
		DX:  tensor.NewSize(in),
	}
}

// Scratch holds the step-scoped buffers of a flat layer.
type Scratch struct {
	X   []float64
	Out []float64
	DX  []float64
}

func newScratch(in, out int) *Scratch {
	return &Scratch{
		X:   make([]float64, in),
		Out: make([]float64, out),
		DX:  make([]float64, in),
	}
}

func loadInput(dst, x *tensor.Tensor) {
	if dst != x {
		dst.CopyFrom(x)
	}
}

func mustLen(what string, got, want int) {
	if got != want {
		panic(fmt.Sprintf("layer: %s has length %d, want %d", what, got, want))
	}
}
