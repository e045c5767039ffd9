// Package tensor provides the dense 3-D volume used by the spatial layers.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Size is the shape of a volume.
type Size struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
	Depth  int `yaml:"depth"`
}

// Len returns the number of cells in a volume of this size.
func (s Size) Len() int {
	return s.Height * s.Width * s.Depth
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Depth)
}

// Tensor is a height x width x depth volume of float64 values.
// Storage is channel-major: index = d*H*W + i*W + j.
type Tensor struct {
	size   Size
	hw     int
	values []float64
}

// New allocates a zero-filled volume.
func New(height, width, depth int) *Tensor {
	return NewSize(Size{Height: height, Width: width, Depth: depth})
}

// NewSize allocates a zero-filled volume of the given size.
func NewSize(size Size) *Tensor {
	if size.Height < 0 || size.Width < 0 || size.Depth < 0 {
		panic(fmt.Sprintf("tensor: negative size %v", size))
	}
	return &Tensor{
		size:   size,
		hw:     size.Height * size.Width,
		values: make([]float64, size.Len()),
	}
}

// FromRows builds a single-channel volume from row-major literals.
func FromRows(rows [][]float64) *Tensor {
	if len(rows) == 0 {
		return New(0, 0, 1)
	}
	t := New(len(rows), len(rows[0]), 1)
	for i, row := range rows {
		if len(row) != t.size.Width {
			panic(fmt.Sprintf("tensor: ragged row %d: got %d, want %d", i, len(row), t.size.Width))
		}
		copy(t.values[i*t.size.Width:], row)
	}
	return t
}

// FromChannels builds a volume from [channel][row][col] literals.
func FromChannels(channels [][][]float64) *Tensor {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return New(0, 0, len(channels))
	}
	t := New(len(channels[0]), len(channels[0][0]), len(channels))
	for d, plane := range channels {
		if len(plane) != t.size.Height {
			panic(fmt.Sprintf("tensor: channel %d has %d rows, want %d", d, len(plane), t.size.Height))
		}
		for i, row := range plane {
			if len(row) != t.size.Width {
				panic(fmt.Sprintf("tensor: ragged row %d in channel %d", i, d))
			}
			copy(t.values[d*t.hw+i*t.size.Width:], row)
		}
	}
	return t
}

// FromFlat rebuilds a volume from values laid out as Flatten returns them.
// The values are copied.
func FromFlat(size Size, values []float64) *Tensor {
	if len(values) != size.Len() {
		panic(fmt.Sprintf("tensor: cannot shape %d values into %v", len(values), size))
	}
	t := NewSize(size)
	copy(t.values, values)
	return t
}

// Size returns the volume's shape.
func (t *Tensor) Size() Size { return t.size }

// Height returns the number of rows.
func (t *Tensor) Height() int { return t.size.Height }

// Width returns the number of columns.
func (t *Tensor) Width() int { return t.size.Width }

// Depth returns the number of channels.
func (t *Tensor) Depth() int { return t.size.Depth }

// Len returns the number of cells.
func (t *Tensor) Len() int { return len(t.values) }

// At returns the value at row i, column j, channel d.
func (t *Tensor) At(i, j, d int) float64 {
	return t.values[d*t.hw+i*t.size.Width+j]
}

// Set writes the value at row i, column j, channel d.
func (t *Tensor) Set(i, j, d int, v float64) {
	t.values[d*t.hw+i*t.size.Width+j] = v
}

// Add accumulates v into the cell at row i, column j, channel d.
func (t *Tensor) Add(i, j, d int, v float64) {
	t.values[d*t.hw+i*t.size.Width+j] += v
}

// Raw exposes the backing storage. Writes are visible to the tensor.
func (t *Tensor) Raw() []float64 { return t.values }

// Plane exposes the backing storage of channel d.
func (t *Tensor) Plane(d int) []float64 {
	return t.values[d*t.hw : (d+1)*t.hw]
}

// Flatten returns a copy of the values in channel-major order.
func (t *Tensor) Flatten() []float64 {
	out := make([]float64, len(t.values))
	copy(out, t.values)
	return out
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return FromFlat(t.size, t.values)
}

// CopyFrom overwrites t with the values of src. Sizes must match.
func (t *Tensor) CopyFrom(src *Tensor) {
	t.mustMatch(src)
	copy(t.values, src.values)
}

// Zero resets every cell to zero.
func (t *Tensor) Zero() {
	clear(t.values)
}

// Turn180 returns a new tensor with every channel rotated by 180 degrees.
func (t *Tensor) Turn180() *Tensor {
	turned := NewSize(t.size)
	h, w := t.size.Height, t.size.Width
	for d := 0; d < t.size.Depth; d++ {
		for i := 0; i < h; i++ {
			for j := 0; j < w; j++ {
				turned.Set(h-i-1, w-j-1, d, t.At(i, j, d))
			}
		}
	}
	return turned
}

// Channel returns channel d as a new single-channel tensor.
func (t *Tensor) Channel(d int) *Tensor {
	res := New(t.size.Height, t.size.Width, 1)
	copy(res.values, t.Plane(d))
	return res
}

// SetChannel writes the single-channel tensor src into channel d.
func (t *Tensor) SetChannel(src *Tensor, d int) {
	if src.size.Depth != 1 || src.size.Height != t.size.Height || src.size.Width != t.size.Width {
		panic(fmt.Sprintf("tensor: cannot set %v as a channel of %v", src.size, t.size))
	}
	copy(t.Plane(d), src.values)
}

// CopyChannel copies channel from of src into channel to of t.
func (t *Tensor) CopyChannel(src *Tensor, from, to int) {
	if src.size.Height != t.size.Height || src.size.Width != t.size.Width {
		panic(fmt.Sprintf("tensor: plane mismatch %v vs %v", src.size, t.size))
	}
	copy(t.Plane(to), src.Plane(from))
}

// AddInPlace accumulates other into t.
func (t *Tensor) AddInPlace(other *Tensor) {
	t.mustMatch(other)
	floats.Add(t.values, other.values)
}

// AddScalar returns a new tensor with v added to every cell.
func (t *Tensor) AddScalar(v float64) *Tensor {
	res := t.Clone()
	floats.AddConst(v, res.values)
	return res
}

// AddChannelBias returns a new tensor with bias[d] added to channel d.
func (t *Tensor) AddChannelBias(bias []float64) *Tensor {
	if len(bias) != t.size.Depth {
		panic(fmt.Sprintf("tensor: %d biases for depth %d", len(bias), t.size.Depth))
	}
	res := t.Clone()
	for d, b := range bias {
		floats.AddConst(b, res.Plane(d))
	}
	return res
}

// Sum returns the sum of every cell.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.values)
}

// Equal reports whether both tensors have the same size and values within tol.
func (t *Tensor) Equal(other *Tensor, tol float64) bool {
	if t.size != other.size {
		return false
	}
	return floats.EqualApprox(t.values, other.values, tol)
}

// Map applies f to every cell in place.
func (t *Tensor) Map(f func(float64) float64) {
	for i, v := range t.values {
		t.values[i] = f(v)
	}
}

func (t *Tensor) mustMatch(other *Tensor) {
	if t.size != other.size {
		panic(fmt.Sprintf("tensor: size mismatch %v vs %v", t.size, other.size))
	}
}

// String prints every channel as a block of rows.
func (t *Tensor) String() string {
	var b strings.Builder
	for d := 0; d < t.size.Depth; d++ {
		for i := 0; i < t.size.Height; i++ {
			for j := 0; j < t.size.Width; j++ {
				v := t.At(i, j, d)
				if math.Abs(v) < 1e-12 {
					v = 0
				}
				fmt.Fprintf(&b, "%g ", v)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
