package layer

import (
	"math/rand"
	"testing"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

const gradTol = 1e-5

var central = &fd.Settings{Formula: fd.Central}

func randomSlice(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func randomVolume(rng *rand.Rand, size tensor.Size) *tensor.Tensor {
	return tensor.FromFlat(size, randomSlice(rng, size.Len()))
}

// spatialProbe scores a spatial layer as L = sum(r * out), so dL/dOut = r.
func spatialProbe(l Spatial, r *tensor.Tensor) func(x *tensor.Tensor) float64 {
	s := l.NewScratch()
	return func(x *tensor.Tensor) float64 {
		return floats.Dot(l.Forward(s, x).Raw(), r.Raw())
	}
}

func TestScratchShapes(t *testing.T) {
	c := NewConv2d(tensor.Size{Height: 6, Width: 6, Depth: 2}, 0, 3, 1, 0, 3)
	s := c.NewScratch()
	assert.Equal(t, c.InputSize(), s.X.Size())
	assert.Equal(t, c.InputSize(), s.DX.Size())
	assert.Equal(t, c.OutputSize(), s.Out.Size())
	assert.Nil(t, s.Mask)

	d := NewDense(7, 3, activations.ReLU)
	fs := d.NewScratch()
	assert.Len(t, fs.X, 7)
	assert.Len(t, fs.Out, 3)
	assert.Len(t, fs.DX, 7)
}

func TestInitIsReproducible(t *testing.T) {
	in := tensor.Size{Height: 8, Width: 8, Depth: 3}
	a := NewConv2d(in, 0, 4, 1, 0, 3)
	b := NewConv2d(in, 0, 4, 1, 0, 3)

	a.Init(xrand.NewSource(7))
	b.Init(xrand.NewSource(7))
	for k := 0; k < a.KernelNum(); k++ {
		assert.True(t, a.Kernel(k).Equal(b.Kernel(k), 0))
	}

	da, db := NewDense(10, 4, 0), NewSoftmax(10, 4)
	da.Init(xrand.NewSource(3))
	db.Init(xrand.NewSource(3))
	assert.Equal(t, da.Weights().RawMatrix().Data, db.Weights().RawMatrix().Data)
	assert.Equal(t, []float64{0, 0, 0, 0}, db.Bias())
}

func TestLayersAreSealed(t *testing.T) {
	spatial := []Spatial{
		NewConv2d(tensor.Size{Height: 4, Width: 4, Depth: 1}, 0, 1, 1, 0, 2),
		NewMaxpool2d(tensor.Size{Height: 4, Width: 4, Depth: 1}, 2),
	}
	flat := []Flat{NewDense(2, 2, 0), NewSoftmax(2, 2)}

	for _, l := range spatial {
		_, ok := l.(Initializer)
		_, isPool := l.(*Maxpool2d)
		assert.Equal(t, !isPool, ok, "%v", l)
	}
	for _, l := range flat {
		_, ok := l.(Initializer)
		assert.True(t, ok, "%v", l)
	}
	require.Len(t, spatial, 2)
}
