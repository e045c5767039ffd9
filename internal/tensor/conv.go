package tensor

import "fmt"

// ConvOutputDim returns floor((in + 2*padding - kernel) / stride) + 1, or 0
// when the kernel does not fit the padded input.
func ConvOutputDim(in, kernel, stride, padding int) int {
	span := in + 2*padding - kernel
	if span < 0 {
		return 0
	}
	return span/stride + 1
}

// Conv correlates img against kernel and sums over channels, producing a
// single-channel volume. Source cells outside img read as zero, so padding is
// never materialised.
//
// The same primitive serves the forward pass, the kernel gradient (upstream
// gradient used as the kernel) and the input gradient (180-degree rotated
// kernel with padding kernelSize-1-padding).
func Conv(img, kernel *Tensor, stride, padding int) *Tensor {
	if img.size.Depth != kernel.size.Depth {
		panic(fmt.Sprintf("tensor: conv depth mismatch: image %v, kernel %v", img.size, kernel.size))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("tensor: conv stride %d", stride))
	}

	outH := ConvOutputDim(img.size.Height, kernel.size.Height, stride, padding)
	outW := ConvOutputDim(img.size.Width, kernel.size.Width, stride, padding)
	out := New(max(outH, 0), max(outW, 0), 1)

	inH, inW := img.size.Height, img.size.Width
	kH, kW := kernel.size.Height, kernel.size.Width
	depth := img.size.Depth

	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			sum := 0.0
			for i := 0; i < kH; i++ {
				i0 := stride*y + i - padding
				if i0 < 0 || i0 >= inH {
					continue
				}
				for j := 0; j < kW; j++ {
					j0 := stride*x + j - padding
					if j0 < 0 || j0 >= inW {
						continue
					}
					for c := 0; c < depth; c++ {
						sum += kernel.values[c*kernel.hw+i*kW+j] * img.values[c*img.hw+i0*inW+j0]
					}
				}
			}
			out.values[y*outW+x] = sum
		}
	}
	return out
}

// Dilate spreads t over a zero volume of height x width: t(y, x, d) lands on
// (stride*y, stride*x, d). Cells that would fall outside are dropped.
func Dilate(t *Tensor, stride, height, width int) *Tensor {
	out := New(height, width, t.size.Depth)
	for d := 0; d < t.size.Depth; d++ {
		for y := 0; y < t.size.Height && stride*y < height; y++ {
			for x := 0; x < t.size.Width && stride*x < width; x++ {
				out.Set(stride*y, stride*x, d, t.At(y, x, d))
			}
		}
	}
	return out
}
