package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
)

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049

	pixelScale = 255.0
)

// IDX loads MNIST-style IDX image and label files. Either file may be
// gzip-compressed. Pixels are scaled to [0, 1].
type IDX struct {
	Images string
	Labels string

	// Classes is the one-hot width; 10 when zero.
	Classes int
	// Limit caps the number of samples read; zero reads all.
	Limit int
}

func (l IDX) Load() ([]LabeledSample, error) {
	classes := l.Classes
	if classes == 0 {
		classes = 10
	}

	images, rows, cols, err := readIDXFile(l.Images, readIDXImages, l.Limit)
	if err != nil {
		return nil, err
	}
	labels, _, _, err := readIDXFile(l.Labels, readIDXLabels, l.Limit)
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("dataset: %d images but %d labels", len(images), len(labels))
	}

	samples := make([]LabeledSample, len(images))
	for i, img := range images {
		label, err := OneHot(int(labels[i][0]), classes)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		input := tensor.New(rows, cols, 1)
		for j, p := range img {
			input.Raw()[j] = float64(p) / pixelScale
		}
		samples[i] = LabeledSample{Label: label, Input: input}
	}
	return samples, nil
}

type idxReader func(r io.Reader, limit int) (records [][]byte, rows, cols int, err error)

func readIDXFile(path string, read idxReader, limit int) ([][]byte, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r, err := maybeGzip(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	records, rows, cols, err := read(r, limit)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	return records, rows, cols, nil
}

// maybeGzip returns a decompressing reader when r starts with the gzip header.
func maybeGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

func readHeader(r io.Reader, magic uint32, dims int) ([]int, error) {
	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, got, magic)
	}

	header := make([]uint32, dims)
	if err := binary.Read(r, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrShortRecord, err)
	}
	out := make([]int, dims)
	for i, v := range header {
		out[i] = int(v)
	}
	return out, nil
}

// readIDXImages reads an image file:
//
//	magic number: 0x00000803 (2051)
//	number of images, rows, cols: 4 bytes each
//	pixel data: unsigned bytes (0-255)
func readIDXImages(r io.Reader, limit int) ([][]byte, int, int, error) {
	dims, err := readHeader(r, idxImagesMagic, 3)
	if err != nil {
		return nil, 0, 0, err
	}
	n, rows, cols := capCount(dims[0], limit), dims[1], dims[2]

	images := make([][]byte, n)
	for i := range images {
		images[i] = make([]byte, rows*cols)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: image %d: %v", ErrShortRecord, i, err)
		}
	}
	return images, rows, cols, nil
}

// readIDXLabels reads a label file:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes
func readIDXLabels(r io.Reader, limit int) ([][]byte, int, int, error) {
	dims, err := readHeader(r, idxLabelsMagic, 1)
	if err != nil {
		return nil, 0, 0, err
	}
	n := capCount(dims[0], limit)

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: labels: %v", ErrShortRecord, err)
	}
	labels := make([][]byte, n)
	for i := range raw {
		labels[i] = raw[i : i+1]
	}
	return labels, 1, 1, nil
}

func capCount(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
