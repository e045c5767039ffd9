package layer

import (
	"math/rand"
	"testing"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/parallel"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func TestConv2d_OutputSize(t *testing.T) {
	tests := []struct {
		in                    tensor.Size
		num, stride, pad, dim int
		want                  tensor.Size
	}{
		{tensor.Size{Height: 28, Width: 28, Depth: 1}, 16, 1, 0, 5, tensor.Size{Height: 24, Width: 24, Depth: 16}},
		{tensor.Size{Height: 12, Width: 12, Depth: 16}, 32, 1, 0, 5, tensor.Size{Height: 8, Width: 8, Depth: 32}},
		{tensor.Size{Height: 7, Width: 9, Depth: 2}, 3, 2, 1, 3, tensor.Size{Height: 4, Width: 5, Depth: 3}},
	}
	for _, tt := range tests {
		c := NewConv2d(tt.in, activations.ReLU, tt.num, tt.stride, tt.pad, tt.dim)
		assert.Equal(t, tt.want, c.OutputSize())
		assert.Equal(t, tt.num*tt.dim*tt.dim*tt.in.Depth+tt.num, c.ParamCount())
	}
}

func TestConv2d_InvalidConfig(t *testing.T) {
	in := tensor.Size{Height: 4, Width: 4, Depth: 1}
	assert.Panics(t, func() { NewConv2d(in, activations.ReLU, 0, 1, 0, 3) })
	assert.Panics(t, func() { NewConv2d(in, activations.ReLU, 1, 0, 0, 3) })
	assert.Panics(t, func() { NewConv2d(in, activations.ReLU, 1, 1, 0, 5) })
	assert.Panics(t, func() { NewConv2d(in, activations.Kind(9), 1, 1, 0, 3) })
}

func TestConv2d_InitialBias(t *testing.T) {
	c := NewConv2d(tensor.Size{Height: 5, Width: 5, Depth: 1}, activations.ReLU, 3, 1, 0, 3)
	assert.Equal(t, []float64{0.01, 0.01, 0.01}, c.Bias())
}

func TestConv2d_ForwardKnownValues(t *testing.T) {
	c := NewConv2d(tensor.Size{Height: 3, Width: 3, Depth: 1}, activations.ReLU, 2, 1, 0, 2)
	c.SetKernel(0, tensor.FromRows([][]float64{{1, 2}, {3, 4}}))
	c.SetKernel(1, tensor.FromRows([][]float64{{-1, 0}, {0, -1}}))
	c.SetBias(0, 1)
	c.SetBias(1, 2)

	x := tensor.FromRows([][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	out := c.Forward(c.NewScratch(), x)

	// channel 1: 2 - (x[i][j] + x[i+1][j+1]) is negative everywhere, so ReLU zeroes it
	assert.Equal(t, []float64{38, 48, 68, 78, 0, 0, 0, 0}, out.Flatten())
}

func TestConv2d_ForwardIsRepeatable(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	c := NewConv2d(tensor.Size{Height: 9, Width: 9, Depth: 2}, activations.Sigmoid, 4, 2, 1, 3)
	x := randomVolume(rng, c.InputSize())

	s := c.NewScratch()
	first := c.Forward(s, x).Clone()
	second := c.Forward(s, x)
	assert.True(t, first.Equal(second, 0))
}

func TestConv2d_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	in := tensor.Size{Height: 10, Width: 10, Depth: 3}
	seq := NewConv2d(in, activations.Sigmoid, 6, 1, 1, 3)
	par := NewConv2d(in, activations.Sigmoid, 6, 1, 1, 3)
	for k := 0; k < seq.KernelNum(); k++ {
		par.SetKernel(k, seq.Kernel(k))
	}
	par.SetParallel(parallel.WithWorkers(4))

	x := randomVolume(rng, in)
	grad := randomVolume(rng, seq.OutputSize())

	ss, ps := seq.NewScratch(), par.NewScratch()
	assert.True(t, seq.Forward(ss, x).Equal(par.Forward(ps, x), 1e-12))
	assert.True(t, seq.Backward(ss, grad, 0.1).Equal(par.Backward(ps, grad, 0.1), 1e-12))
	for k := 0; k < seq.KernelNum(); k++ {
		assert.True(t, seq.Kernel(k).Equal(par.Kernel(k), 1e-12))
	}
}

func TestConv2d_GradientsMatchNumeric(t *testing.T) {
	tests := []struct {
		name                  string
		in                    tensor.Size
		act                   activations.Kind
		num, stride, pad, dim int
	}{
		{"stride 1", tensor.Size{Height: 6, Width: 6, Depth: 2}, activations.Sigmoid, 3, 1, 0, 3},
		{"stride 2", tensor.Size{Height: 7, Width: 7, Depth: 2}, activations.Sigmoid, 2, 2, 0, 3},
		{"stride 2 uneven", tensor.Size{Height: 8, Width: 6, Depth: 1}, activations.Sigmoid, 2, 2, 0, 3},
		{"padding", tensor.Size{Height: 5, Width: 5, Depth: 3}, activations.Identity, 2, 1, 1, 3},
		{"stride 2 padding", tensor.Size{Height: 6, Width: 6, Depth: 2}, activations.Sigmoid, 2, 2, 1, 3},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(i + 1)))
			c := NewConv2d(tt.in, tt.act, tt.num, tt.stride, tt.pad, tt.dim)
			x := randomVolume(rng, tt.in)
			r := randomVolume(rng, c.OutputSize())
			probe := spatialProbe(c, r)

			wantDX := fd.Gradient(nil, func(v []float64) float64 {
				return probe(tensor.FromFlat(tt.in, v))
			}, x.Flatten(), central)

			wantDK := make([][]float64, c.KernelNum())
			for k := range wantDK {
				kern := c.Kernel(k)
				orig := kern.Flatten()
				wantDK[k] = fd.Gradient(nil, func(v []float64) float64 {
					copy(kern.Raw(), v)
					defer copy(kern.Raw(), orig)
					return probe(x)
				}, orig, central)
			}

			wantDB := fd.Gradient(nil, func(v []float64) float64 {
				orig := append([]float64(nil), c.Bias()...)
				copy(c.Bias(), v)
				defer copy(c.Bias(), orig)
				return probe(x)
			}, append([]float64(nil), c.Bias()...), central)

			before := make([][]float64, c.KernelNum())
			for k := range before {
				before[k] = c.Kernel(k).Flatten()
			}
			biasBefore := append([]float64(nil), c.Bias()...)

			s := c.NewScratch()
			c.Forward(s, x)
			// alpha = 1 makes the parameter change equal to minus the gradient
			dx := c.Backward(s, r, 1)

			assert.InDeltaSlice(t, wantDX, dx.Flatten(), gradTol)
			for k := range before {
				got := make([]float64, len(before[k]))
				for j, w := range c.Kernel(k).Raw() {
					got[j] = before[k][j] - w
				}
				assert.InDeltaSlice(t, wantDK[k], got, gradTol, "kernel %d", k)
			}
			for k, b := range c.Bias() {
				assert.InDelta(t, wantDB[k], biasBefore[k]-b, gradTol, "bias %d", k)
			}
		})
	}
}

func TestConv2d_ZeroAlphaKeepsParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	c := NewConv2d(tensor.Size{Height: 5, Width: 5, Depth: 1}, activations.ReLU, 2, 1, 0, 3)
	kernel := c.Kernel(0).Clone()

	s := c.NewScratch()
	c.Forward(s, randomVolume(rng, c.InputSize()))
	c.Backward(s, randomVolume(rng, c.OutputSize()), 0)

	assert.True(t, kernel.Equal(c.Kernel(0), 0))
	assert.Equal(t, []float64{0.01, 0.01}, c.Bias())
}

func TestConv2d_BackwardShapeMismatch(t *testing.T) {
	c := NewConv2d(tensor.Size{Height: 5, Width: 5, Depth: 1}, activations.ReLU, 2, 1, 0, 3)
	s := c.NewScratch()
	c.Forward(s, tensor.NewSize(c.InputSize()))
	require.Panics(t, func() { c.Backward(s, tensor.New(3, 3, 1), 0.1) })
	require.Panics(t, func() { c.Forward(s, tensor.New(4, 4, 1)) })
}
