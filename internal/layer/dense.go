package layer

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/opt"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// affine holds the weights shared by Dense and Softmax: out = W·x + b.
type affine struct {
	in, out int

	w *mat.Dense // out x in
	b []float64

	// step-scoped gradients
	dW *mat.Dense
	dZ []float64
}

func newAffine(in, out int) affine {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("layer: invalid flat layer %d -> %d", in, out))
	}
	a := affine{
		in:  in,
		out: out,
		w:   mat.NewDense(out, in, nil),
		b:   make([]float64, out),
		dW:  mat.NewDense(out, in, nil),
		dZ:  make([]float64, out),
	}
	a.Init(nil)
	return a
}

// Init draws weights from N(0, 2/in) and zeroes the bias.
func (a *affine) Init(src rand.Source) {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2 / float64(a.in)),
		Src:   src,
	}
	w := a.w.RawMatrix().Data
	for i := range w {
		w[i] = dist.Rand()
	}
	clear(a.b)
}

func (a *affine) forward(s *Scratch, x []float64) {
	mustLen("input", len(x), a.in)
	copy(s.X, x)

	z := mat.NewVecDense(a.out, s.Out)
	z.MulVec(a.w, mat.NewVecDense(a.in, s.X))
	floats.Add(s.Out, a.b)
}

// update computes dX = Wᵀ·dZ with the current weights, then applies
// W -= alpha·dZ·Xᵀ and b -= alpha·dZ.
func (a *affine) update(s *Scratch, alpha float64) []float64 {
	dz := mat.NewVecDense(a.out, a.dZ)

	dx := mat.NewVecDense(a.in, s.DX)
	dx.MulVec(a.w.T(), dz)

	a.dW.Outer(1, dz, mat.NewVecDense(a.in, s.X))

	sgd := opt.SGD{LearningRate: alpha}
	sgd.StepInPlace(a.w.RawMatrix().Data, a.dW.RawMatrix().Data)
	sgd.StepInPlace(a.b, a.dZ)
	return s.DX
}

func (a *affine) NewScratch() *Scratch { return newScratch(a.in, a.out) }
func (a *affine) InputSize() int       { return a.in }
func (a *affine) OutputSize() int      { return a.out }
func (a *affine) ParamCount() int      { return a.in*a.out + a.out }

// Weights returns the out x in weight matrix. The matrix is live.
func (a *affine) Weights() *mat.Dense { return a.w }

// Bias returns the bias vector. The slice is live.
func (a *affine) Bias() []float64 { return a.b }

func (a *affine) SetWeight(row, col int, v float64) { a.w.Set(row, col, v) }
func (a *affine) SetBias(i int, v float64)          { a.b[i] = v }

// Dense is a fully connected layer: out = act(W·x + b).
type Dense struct {
	affine
	act activations.Kind
}

// NewDense creates a fully connected layer.
func NewDense(in, out int, act activations.Kind) *Dense {
	if !act.Valid() {
		panic(fmt.Sprintf("layer: invalid activation %v", act))
	}
	return &Dense{affine: newAffine(in, out), act: act}
}

func (d *Dense) Forward(s *Scratch, x []float64) []float64 {
	d.forward(s, x)
	d.act.ActivateInPlace(s.Out)
	return s.Out
}

// Backward takes dL/dOut.
func (d *Dense) Backward(s *Scratch, grad []float64, alpha float64) []float64 {
	mustLen("gradient", len(grad), d.out)
	for i, g := range grad {
		d.dZ[i] = g * d.act.DerivativeFromOutput(s.Out[i])
	}
	return d.update(s, alpha)
}

func (d *Dense) Activation() activations.Kind { return d.act }

func (d *Dense) flat() {}

func (d *Dense) String() string {
	return fmt.Sprintf("Dense(%d -> %d, %v)", d.in, d.out, d.act)
}
