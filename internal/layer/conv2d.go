package layer

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/opt"
	"github.com/FlavioCFOliveira/convnet/internal/parallel"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const initialConvBias = 0.01

// Conv2d implements a 2D convolutional layer.
// Kernel k is a kernelDim x kernelDim x inDepth volume producing output channel k.
type Conv2d struct {
	in  tensor.Size
	out tensor.Size
	act activations.Kind

	kernelDim int
	stride    int
	padding   int

	kernels []*tensor.Tensor
	bias    []float64

	// step-scoped gradients, zeroed after every update
	dK []*tensor.Tensor
	dB []float64

	par parallel.Config
}

// NewConv2d creates a convolution over volumes of size in.
// The output is (floor((H+2p-k)/s)+1) x (floor((W+2p-k)/s)+1) x kernelNum.
func NewConv2d(in tensor.Size, act activations.Kind, kernelNum, stride, padding, kernelDim int) *Conv2d {
	if kernelNum <= 0 || stride <= 0 || kernelDim <= 0 || padding < 0 {
		panic(fmt.Sprintf("layer: invalid conv2d kernels=%d stride=%d padding=%d kernel=%d",
			kernelNum, stride, padding, kernelDim))
	}
	if !act.Valid() {
		panic(fmt.Sprintf("layer: invalid activation %v", act))
	}
	out := tensor.Size{
		Height: tensor.ConvOutputDim(in.Height, kernelDim, stride, padding),
		Width:  tensor.ConvOutputDim(in.Width, kernelDim, stride, padding),
		Depth:  kernelNum,
	}
	if in.Depth <= 0 || out.Height <= 0 || out.Width <= 0 {
		panic(fmt.Sprintf("layer: conv2d kernel %d does not fit input %v", kernelDim, in))
	}

	c := &Conv2d{
		in:        in,
		out:       out,
		act:       act,
		kernelDim: kernelDim,
		stride:    stride,
		padding:   padding,
		kernels:   make([]*tensor.Tensor, kernelNum),
		bias:      make([]float64, kernelNum),
		dK:        make([]*tensor.Tensor, kernelNum),
		dB:        make([]float64, kernelNum),
		par:       parallel.Sequential,
	}
	for k := range c.kernels {
		c.kernels[k] = tensor.New(kernelDim, kernelDim, in.Depth)
		c.dK[k] = tensor.New(kernelDim, kernelDim, in.Depth)
	}
	c.Init(nil)
	return c
}

// Init draws kernel weights from N(0, 2/k^2) and sets every bias to 0.01.
func (c *Conv2d) Init(src rand.Source) {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2) / float64(c.kernelDim),
		Src:   src,
	}
	for _, kern := range c.kernels {
		w := kern.Raw()
		for i := range w {
			w[i] = dist.Rand()
		}
	}
	for k := range c.bias {
		c.bias[k] = initialConvBias
	}
}

// SetParallel sets how per-channel work is spread across goroutines.
func (c *Conv2d) SetParallel(cfg parallel.Config) { c.par = cfg }

func (c *Conv2d) NewScratch() *Scratch2d { return newScratch2d(c.in, c.out) }

// Forward computes act(Conv(X, K[k]) + b[k]) for every output channel k.
func (c *Conv2d) Forward(s *Scratch2d, x *tensor.Tensor) *tensor.Tensor {
	loadInput(s.X, x)

	parallel.For(len(c.kernels), func(k int) {
		z := tensor.Conv(s.X, c.kernels[k], c.stride, c.padding)
		plane := s.Out.Plane(k)
		for i, v := range z.Raw() {
			plane[i] = c.act.Activate(v + c.bias[k])
		}
	}, c.par)

	return s.Out
}

// Backward computes the kernel, bias and input gradients from dL/dOut,
// applies the update and returns dL/dX.
func (c *Conv2d) Backward(s *Scratch2d, grad *tensor.Tensor, alpha float64) *tensor.Tensor {
	if grad.Size() != c.out {
		panic(fmt.Sprintf("layer: conv2d gradient %v, want %v", grad.Size(), c.out))
	}

	dZ := tensor.NewSize(c.out)
	dz, g, out := dZ.Raw(), grad.Raw(), s.Out.Raw()
	for i := range dz {
		dz[i] = g[i] * c.act.DerivativeFromOutput(out[i])
	}

	// Spread dZ over the stride-1 grid so both gradients are plain stride-1
	// correlations. With stride 1 this only copies.
	dilated := tensor.Dilate(dZ, c.stride,
		c.in.Height+2*c.padding-c.kernelDim+1,
		c.in.Width+2*c.padding-c.kernelDim+1)
	planes := make([]*tensor.Tensor, len(c.kernels))
	for k := range planes {
		planes[k] = dilated.Channel(k)
	}

	// dX uses the kernels of the forward pass, so it runs before the update.
	turned := make([]*tensor.Tensor, len(c.kernels))
	for k, kern := range c.kernels {
		turned[k] = kern.Turn180()
	}
	full := c.kernelDim - 1 - c.padding
	parallel.For(c.in.Depth, func(ch int) {
		dst := s.DX.Plane(ch)
		clear(dst)
		for k := range planes {
			floats.Add(dst, tensor.Conv(planes[k], turned[k].Channel(ch), 1, full).Raw())
		}
	}, c.par)

	parallel.For(len(c.kernels), func(k int) {
		for ch := 0; ch < c.in.Depth; ch++ {
			c.dK[k].SetChannel(tensor.Conv(s.X.Channel(ch), planes[k], 1, c.padding), ch)
		}
		c.dB[k] = floats.Sum(dZ.Plane(k))
	}, c.par)

	c.apply(alpha)
	return s.DX
}

func (c *Conv2d) apply(alpha float64) {
	sgd := opt.SGD{LearningRate: alpha}
	for k, kern := range c.kernels {
		sgd.StepInPlace(kern.Raw(), c.dK[k].Raw())
		c.dK[k].Zero()
	}
	sgd.StepInPlace(c.bias, c.dB)
	clear(c.dB)
}

func (c *Conv2d) InputSize() tensor.Size  { return c.in }
func (c *Conv2d) OutputSize() tensor.Size { return c.out }

// Kernel returns kernel k. The tensor is live: writes change the layer.
func (c *Conv2d) Kernel(k int) *tensor.Tensor { return c.kernels[k] }

// SetKernel copies t into kernel k.
func (c *Conv2d) SetKernel(k int, t *tensor.Tensor) { c.kernels[k].CopyFrom(t) }

// Bias returns the per-kernel biases. The slice is live.
func (c *Conv2d) Bias() []float64 { return c.bias }

func (c *Conv2d) SetBias(k int, v float64) { c.bias[k] = v }

func (c *Conv2d) KernelNum() int { return len(c.kernels) }
func (c *Conv2d) KernelDim() int { return c.kernelDim }
func (c *Conv2d) Stride() int    { return c.stride }
func (c *Conv2d) Padding() int   { return c.padding }

func (c *Conv2d) Activation() activations.Kind { return c.act }

func (c *Conv2d) ParamCount() int {
	return len(c.kernels)*c.kernelDim*c.kernelDim*c.in.Depth + len(c.bias)
}

func (c *Conv2d) spatial() {}

func (c *Conv2d) String() string {
	return fmt.Sprintf("Conv2d(%d, %dx%d, stride=%d, padding=%d, %v)",
		len(c.kernels), c.kernelDim, c.kernelDim, c.stride, c.padding, c.act)
}
