package net

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/layer"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"gopkg.in/yaml.v3"
)

// Layer kinds understood by New.
const (
	KindConv2d  = "Conv2d"
	KindMaxpool = "Maxpool"
	KindDense   = "Dense"
	KindSoftmax = "Softmax"
)

// SpatialSpec describes one spatial layer. Maxpool reads only Kind,
// InputSize and KernelDim.
type SpatialSpec struct {
	Kind       string           `yaml:"kind"`
	InputSize  tensor.Size      `yaml:"input"`
	KernelDim  int              `yaml:"kernel"`
	Stride     int              `yaml:"stride,omitempty"`
	KernelNum  int              `yaml:"kernels,omitempty"`
	Padding    int              `yaml:"padding,omitempty"`
	Activation activations.Kind `yaml:"activation,omitempty"`
}

// FlatSpec describes one flat layer. Softmax ignores Activation.
type FlatSpec struct {
	Kind       string           `yaml:"kind"`
	InputSize  int              `yaml:"input"`
	OutputSize int              `yaml:"output"`
	Activation activations.Kind `yaml:"activation,omitempty"`
}

// Topology lists the spatial stack, which may be empty, and the flat stack.
type Topology struct {
	Spatial []SpatialSpec `yaml:"spatial"`
	Flat    []FlatSpec    `yaml:"flat"`
}

// MNISTTopology is the reference network for 28x28 grayscale digits.
func MNISTTopology() Topology {
	return Topology{
		Spatial: []SpatialSpec{
			{Kind: KindConv2d, InputSize: tensor.Size{Height: 28, Width: 28, Depth: 1}, KernelDim: 5, Stride: 1, KernelNum: 16, Activation: activations.ReLU},
			{Kind: KindMaxpool, InputSize: tensor.Size{Height: 24, Width: 24, Depth: 16}, KernelDim: 2},
			{Kind: KindConv2d, InputSize: tensor.Size{Height: 12, Width: 12, Depth: 16}, KernelDim: 5, Stride: 1, KernelNum: 32, Activation: activations.ReLU},
			{Kind: KindMaxpool, InputSize: tensor.Size{Height: 8, Width: 8, Depth: 32}, KernelDim: 2},
		},
		Flat: []FlatSpec{
			{Kind: KindSoftmax, InputSize: 4 * 4 * 32, OutputSize: 10},
		},
	}
}

// ParseTopology decodes a YAML topology.
func ParseTopology(r io.Reader) (Topology, error) {
	var top Topology
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&top); err != nil {
		return Topology{}, fmt.Errorf("failed to parse topology: %w", err)
	}
	return top, nil
}

// LoadTopology reads a YAML topology file.
func LoadTopology(path string) (Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return Topology{}, fmt.Errorf("failed to open topology: %w", err)
	}
	defer f.Close()

	top, err := ParseTopology(f)
	if err != nil {
		return Topology{}, fmt.Errorf("%s: %w", path, err)
	}
	return top, nil
}

// WriteYAML encodes t as YAML.
func (t Topology) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}

func (n *Net) build(top Topology) error {
	var prev *tensor.Size
	for i, spec := range top.Spatial {
		var l layer.Spatial
		switch {
		case strings.EqualFold(spec.Kind, KindConv2d):
			stride := spec.Stride
			if stride == 0 {
				stride = 1
			}
			if spec.KernelNum <= 0 || stride < 0 || spec.Padding < 0 || spec.KernelDim <= 0 ||
				!spec.Activation.Valid() || spec.InputSize.Depth <= 0 ||
				tensor.ConvOutputDim(spec.InputSize.Height, spec.KernelDim, stride, spec.Padding) <= 0 ||
				tensor.ConvOutputDim(spec.InputSize.Width, spec.KernelDim, stride, spec.Padding) <= 0 {
				return fmt.Errorf("spatial layer %d (%s): %w", i, spec.Kind, ErrInvalidLayer)
			}
			l = layer.NewConv2d(spec.InputSize, spec.Activation, spec.KernelNum, stride, spec.Padding, spec.KernelDim)
		case strings.EqualFold(spec.Kind, KindMaxpool), strings.EqualFold(spec.Kind, "Maxpool2d"):
			if spec.KernelDim <= 0 || spec.KernelDim > spec.InputSize.Height ||
				spec.KernelDim > spec.InputSize.Width || spec.InputSize.Depth <= 0 {
				return fmt.Errorf("spatial layer %d (%s): %w", i, spec.Kind, ErrInvalidLayer)
			}
			l = layer.NewMaxpool2d(spec.InputSize, spec.KernelDim)
		default:
			continue
		}

		if prev != nil && *prev != l.InputSize() {
			return fmt.Errorf("spatial layer %d takes %v after %v: %w", i, l.InputSize(), *prev, ErrShapeMismatch)
		}
		out := l.OutputSize()
		prev = &out
		n.spatial = append(n.spatial, l)
	}

	prevLen := -1
	if prev != nil {
		prevLen = prev.Len()
	}
	for i, spec := range top.Flat {
		var l layer.Flat
		switch {
		case strings.EqualFold(spec.Kind, KindDense):
			if spec.InputSize <= 0 || spec.OutputSize <= 0 || !spec.Activation.Valid() {
				return fmt.Errorf("flat layer %d (%s): %w", i, spec.Kind, ErrInvalidLayer)
			}
			l = layer.NewDense(spec.InputSize, spec.OutputSize, spec.Activation)
		case strings.EqualFold(spec.Kind, KindSoftmax):
			if spec.InputSize <= 0 || spec.OutputSize <= 0 {
				return fmt.Errorf("flat layer %d (%s): %w", i, spec.Kind, ErrInvalidLayer)
			}
			l = layer.NewSoftmax(spec.InputSize, spec.OutputSize)
		default:
			continue
		}

		if prevLen >= 0 && prevLen != l.InputSize() {
			return fmt.Errorf("flat layer %d takes %d after %d: %w", i, l.InputSize(), prevLen, ErrShapeMismatch)
		}
		prevLen = l.OutputSize()
		n.flat = append(n.flat, l)
	}

	if len(n.flat) == 0 {
		return fmt.Errorf("failed to build network: %w", ErrNoFlatLayers)
	}
	return nil
}

