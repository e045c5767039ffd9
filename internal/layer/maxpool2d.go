package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
)

// Maxpool2d keeps the largest value of each kernelDim x kernelDim window.
// Windows do not overlap (stride = kernelDim) and there is no padding.
// Trailing rows and columns that do not fill a window are dropped.
type Maxpool2d struct {
	in        tensor.Size
	out       tensor.Size
	kernelDim int
}

// NewMaxpool2d creates a max-pooling layer over volumes of size in.
func NewMaxpool2d(in tensor.Size, kernelDim int) *Maxpool2d {
	if kernelDim <= 0 || kernelDim > in.Height || kernelDim > in.Width || in.Depth <= 0 {
		panic(fmt.Sprintf("layer: maxpool kernel %d does not fit input %v", kernelDim, in))
	}
	return &Maxpool2d{
		in: in,
		out: tensor.Size{
			Height: (in.Height-kernelDim)/kernelDim + 1,
			Width:  (in.Width-kernelDim)/kernelDim + 1,
			Depth:  in.Depth,
		},
		kernelDim: kernelDim,
	}
}

func (m *Maxpool2d) NewScratch() *Scratch2d {
	s := newScratch2d(m.in, m.out)
	s.Mask = tensor.NewSize(m.in)
	return s
}

// Forward writes each window's maximum to Out and marks its position in Mask.
// On ties the first cell in row-major order wins.
func (m *Maxpool2d) Forward(s *Scratch2d, x *tensor.Tensor) *tensor.Tensor {
	loadInput(s.X, x)
	s.Mask.Zero()

	k := m.kernelDim
	for d := 0; d < m.out.Depth; d++ {
		for y := 0; y < m.out.Height; y++ {
			for x := 0; x < m.out.Width; x++ {
				bi, bj := y*k, x*k
				best := s.X.At(bi, bj, d)
				for i := y * k; i < (y+1)*k; i++ {
					for j := x * k; j < (x+1)*k; j++ {
						if v := s.X.At(i, j, d); v > best {
							best, bi, bj = v, i, j
						}
					}
				}
				s.Out.Set(y, x, d, best)
				s.Mask.Set(bi, bj, d, 1)
			}
		}
	}
	return s.Out
}

// Backward routes each window's gradient to the cell that held the maximum.
// There are no parameters; alpha is ignored.
func (m *Maxpool2d) Backward(s *Scratch2d, grad *tensor.Tensor, _ float64) *tensor.Tensor {
	if grad.Size() != m.out {
		panic(fmt.Sprintf("layer: maxpool gradient %v, want %v", grad.Size(), m.out))
	}
	s.DX.Zero()

	k := m.kernelDim
	for d := 0; d < m.out.Depth; d++ {
		for y := 0; y < m.out.Height; y++ {
			for x := 0; x < m.out.Width; x++ {
				g := grad.At(y, x, d)
				for i := y * k; i < (y+1)*k; i++ {
					for j := x * k; j < (x+1)*k; j++ {
						s.DX.Set(i, j, d, g*s.Mask.At(i, j, d))
					}
				}
			}
		}
	}
	return s.DX
}

func (m *Maxpool2d) InputSize() tensor.Size  { return m.in }
func (m *Maxpool2d) OutputSize() tensor.Size { return m.out }
func (m *Maxpool2d) KernelDim() int          { return m.kernelDim }
func (m *Maxpool2d) ParamCount() int         { return 0 }
func (m *Maxpool2d) spatial() {}

func (m *Maxpool2d) String() string {
	return fmt.Sprintf("Maxpool2d(%dx%d)", m.kernelDim, m.kernelDim)
}
