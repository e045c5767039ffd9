// Package convnet re-exports the network, layer and dataset API for use
// outside this module.
package convnet

import (
	"github.com/FlavioCFOliveira/convnet/internal/activations"
	"github.com/FlavioCFOliveira/convnet/internal/dataset"
	"github.com/FlavioCFOliveira/convnet/internal/net"
	"github.com/FlavioCFOliveira/convnet/internal/opt"
	"github.com/FlavioCFOliveira/convnet/internal/parallel"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
)

// Re-export common types for easier access
type (
	Net           = net.Net
	Option        = net.Option
	Topology      = net.Topology
	SpatialSpec   = net.SpatialSpec
	FlatSpec      = net.FlatSpec
	Metrics       = net.Metrics
	EpochStats    = net.EpochStats
	Callback      = net.Callback
	BaseCallback  = net.BaseCallback
	Tensor        = tensor.Tensor
	Size          = tensor.Size
	Activation    = activations.Kind
	LabeledSample = dataset.LabeledSample
	Loader        = dataset.Loader
	IDX           = dataset.IDX
	CSV           = dataset.CSV
	Schedule      = opt.Schedule
)

// Activations
const (
	Identity = activations.Identity
	Sigmoid  = activations.Sigmoid
	ReLU     = activations.ReLU
)

// Layer kinds
const (
	Conv2d  = net.KindConv2d
	Maxpool = net.KindMaxpool
	Dense   = net.KindDense
	Softmax = net.KindSoftmax
)

// Errors
var (
	ErrNoFlatLayers  = net.ErrNoFlatLayers
	ErrShapeMismatch = net.ErrShapeMismatch
	ErrInvalidLayer  = net.ErrInvalidLayer
)

// Network creation
func New(top Topology, opts ...Option) (*Net, error) {
	return net.New(top, opts...)
}

func MNISTTopology() Topology {
	return net.MNISTTopology()
}

func LoadTopology(path string) (Topology, error) {
	return net.LoadTopology(path)
}

// Options
var (
	WithLogger      = net.WithLogger
	WithReportEvery = net.WithReportEvery
	WithCallbacks   = net.WithCallbacks
	WithSeed        = net.WithSeed
)

// WithWorkers spreads convolution work over n goroutines.
func WithWorkers(n int) Option {
	return net.WithParallel(parallel.WithWorkers(n))
}

// Tensors
func NewTensor(height, width, depth int) *Tensor {
	return tensor.New(height, width, depth)
}

func TensorFromFlat(size Size, values []float64) *Tensor {
	return tensor.FromFlat(size, values)
}

// Data
func Split(samples []LabeledSample, trainFrac float64) (train, test []LabeledSample) {
	return dataset.Split(samples, trainFrac)
}

func OneHot(label, classes int) ([]float64, error) {
	return dataset.OneHot(label, classes)
}

// Schedules
func Constant(alpha float64) Schedule {
	return opt.Constant(alpha)
}

func StepDecay(initial float64, stepSize int, gamma float64) Schedule {
	return opt.NewStepDecay(initial, stepSize, gamma)
}

// Callbacks
func NewEarlyStopping(patience int, threshold float64) *net.EarlyStopping {
	return net.NewEarlyStopping(patience, threshold)
}

func NewCSVLogger(filename string, append bool) *net.CSVLogger {
	return net.NewCSVLogger(filename, append)
}
