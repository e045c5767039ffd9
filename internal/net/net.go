// Package net chains spatial and flat layers into a trainable network.
package net

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/FlavioCFOliveira/convnet/internal/dataset"
	"github.com/FlavioCFOliveira/convnet/internal/layer"
	"github.com/FlavioCFOliveira/convnet/internal/loss"
	"github.com/FlavioCFOliveira/convnet/internal/opt"
	"github.com/FlavioCFOliveira/convnet/internal/parallel"
	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"golang.org/x/exp/rand"
)

var (
	// ErrNoFlatLayers is returned for a topology without any flat layer.
	ErrNoFlatLayers = errors.New("net: topology has no flat layers")
	// ErrShapeMismatch is returned when a layer's input size differs from
	// the output size of the layer before it.
	ErrShapeMismatch = errors.New("net: layer sizes do not chain")
	// ErrInvalidLayer is returned for a layer whose parameters cannot work,
	// such as a kernel larger than its padded input.
	ErrInvalidLayer = errors.New("net: invalid layer")
)

const defaultReportEvery = 100

// Net is an ordered stack of spatial layers followed by flat layers,
// trained one sample at a time with SGD.
//
// A Net owns one scratch per layer and is not safe for concurrent use.
type Net struct {
	spatial []layer.Spatial
	flat    []layer.Flat

	spatialScratch []*layer.Scratch2d
	flatScratch    []*layer.Scratch

	// spatialGrad receives the first flat layer's dX reshaped to the last
	// spatial output size.
	spatialGrad *tensor.Tensor
	// objective scores the output: cross-entropy after a Softmax layer,
	// mean squared error after a Dense one.
	objective loss.Loss
	// outGrad holds dL/dA for a Dense output layer.
	outGrad []float64

	logger      *log.Logger
	reportEvery int
	callbacks   []Callback
	par         parallel.Config
	src         rand.Source

	stop bool
}

// Option configures a Net.
type Option func(*Net)

// WithLogger sets the progress logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(n *Net) { n.logger = l }
}

// WithReportEvery sets how many training samples make up one progress
// window. Zero disables progress reports.
func WithReportEvery(samples int) Option {
	return func(n *Net) { n.reportEvery = samples }
}

// WithParallel spreads convolution work according to cfg.
func WithParallel(cfg parallel.Config) Option {
	return func(n *Net) { n.par = cfg }
}

// WithCallbacks registers training callbacks.
func WithCallbacks(cbs ...Callback) Option {
	return func(n *Net) { n.callbacks = append(n.callbacks, cbs...) }
}

// WithSeed makes parameter initialisation reproducible.
func WithSeed(seed uint64) Option {
	return func(n *Net) { n.src = rand.NewSource(seed) }
}

// New builds a network from top. Specs with an unknown kind are skipped.
func New(top Topology, opts ...Option) (*Net, error) {
	n := &Net{
		logger:      log.Default(),
		reportEvery: defaultReportEvery,
		par:         parallel.Sequential,
	}
	for _, o := range opts {
		o(n)
	}
	if n.logger == nil {
		n.logger = log.New(io.Discard, "", 0)
	}

	if err := n.build(top); err != nil {
		return nil, err
	}

	for _, l := range n.spatial {
		if c, ok := l.(*layer.Conv2d); ok {
			c.SetParallel(n.par)
		}
		if n.src != nil {
			if p, ok := l.(layer.Initializer); ok {
				p.Init(n.src)
			}
		}
		n.spatialScratch = append(n.spatialScratch, l.NewScratch())
	}
	for _, l := range n.flat {
		if n.src != nil {
			l.(layer.Initializer).Init(n.src)
		}
		n.flatScratch = append(n.flatScratch, l.NewScratch())
	}
	if len(n.spatial) > 0 {
		n.spatialGrad = tensor.NewSize(n.spatial[len(n.spatial)-1].OutputSize())
	}
	last := n.flat[len(n.flat)-1]
	n.objective = loss.MSE{}
	if _, ok := last.(*layer.Softmax); ok {
		n.objective = loss.CrossEntropy{}
	}
	n.outGrad = make([]float64, last.OutputSize())
	return n, nil
}

// Forward runs x through every layer and returns the output of the last one.
// The slice is owned by the Net and overwritten by the next Forward.
func (n *Net) Forward(x *tensor.Tensor) []float64 {
	cur := x
	for i, l := range n.spatial {
		cur = l.Forward(n.spatialScratch[i], cur)
	}

	vec := cur.Raw()
	for i, l := range n.flat {
		vec = l.Forward(n.flatScratch[i], vec)
	}
	return vec
}

// Predict is Forward returning a copy the caller may keep.
func (n *Net) Predict(x *tensor.Tensor) []float64 {
	out := n.Forward(x)
	res := make([]float64, len(out))
	copy(res, out)
	return res
}

// Backprop propagates the error of the last Forward against the one-hot
// label y and updates every layer with step alpha.
func (n *Net) Backprop(y []float64, alpha float64) {
	last := len(n.flat) - 1
	grad := y
	// Softmax takes the label itself; a Dense output needs dL/dA.
	if _, ok := n.flat[last].(*layer.Softmax); !ok {
		n.objective.(loss.BackwardInPlacer).BackwardInPlace(n.flatScratch[last].Out, y, n.outGrad)
		grad = n.outGrad
	}

	for i := last; i >= 0; i-- {
		grad = n.flat[i].Backward(n.flatScratch[i], grad, alpha)
	}
	if len(n.spatial) == 0 {
		return
	}

	copy(n.spatialGrad.Raw(), grad)
	g := n.spatialGrad
	for i := len(n.spatial) - 1; i >= 0; i-- {
		g = n.spatial[i].Backward(n.spatialScratch[i], g, alpha)
	}
}

// Train runs one epoch of per-sample SGD over samples in order.
func (n *Net) Train(samples []dataset.LabeledSample, alpha float64) Metrics {
	var total, window Metrics
	for i, s := range samples {
		out := n.Forward(s.Input)
		hit := dataset.ArgMax(out) == s.Class()
		l := n.loss(out, s.Label)
		total.add(hit, l)
		window.add(hit, l)

		n.Backprop(s.Label, alpha)

		if n.reportEvery > 0 && window.Samples == n.reportEvery {
			window.finish()
			n.logger.Printf("#%d %.2f", i+1, window.Accuracy)
			for _, cb := range n.callbacks {
				cb.OnProgress(i+1, window, n)
			}
			window = Metrics{}
		}
	}
	total.finish()
	return total
}

// Test evaluates samples without updating parameters.
func (n *Net) Test(samples []dataset.LabeledSample) Metrics {
	m := n.Evaluate(samples)
	n.logger.Printf("correct/total = %d/%d = %.4f", m.Correct, m.Samples, m.Accuracy)
	return m
}

// Evaluate is Test without logging.
func (n *Net) Evaluate(samples []dataset.LabeledSample) Metrics {
	var m Metrics
	for _, s := range samples {
		out := n.Forward(s.Input)
		m.add(dataset.ArgMax(out) == s.Class(), n.loss(out, s.Label))
	}
	m.finish()
	return m
}

// EpochStats summarises one epoch of Fit.
type EpochStats struct {
	Epoch    int
	Alpha    float64
	Train    Metrics
	Test     Metrics
	Duration time.Duration
}

// Fit trains for up to epochs epochs, taking the step size of each epoch from
// schedule, and evaluates on test after each one when test is not empty.
// A callback may end training early through StopTraining.
func (n *Net) Fit(train, test []dataset.LabeledSample, epochs int, schedule opt.Schedule) []EpochStats {
	n.stop = false
	for _, cb := range n.callbacks {
		cb.OnTrainBegin(n)
	}

	var history []EpochStats
	for epoch := 0; epoch < epochs && !n.stop; epoch++ {
		for _, cb := range n.callbacks {
			cb.OnEpochBegin(epoch, n)
		}

		start := time.Now()
		stats := EpochStats{Epoch: epoch, Alpha: schedule.Rate(epoch)}
		stats.Train = n.Train(train, stats.Alpha)
		if len(test) > 0 {
			stats.Test = n.Evaluate(test)
		}
		stats.Duration = time.Since(start)
		history = append(history, stats)

		n.logger.Printf("epoch %d: alpha=%g train %v test %v (%s)",
			epoch, stats.Alpha, stats.Train, stats.Test, stats.Duration.Round(time.Millisecond))
		for _, cb := range n.callbacks {
			cb.OnEpochEnd(epoch, stats, n)
		}
	}

	for _, cb := range n.callbacks {
		cb.OnTrainEnd(n)
	}
	return history
}

// StopTraining makes Fit return after the current epoch.
func (n *Net) StopTraining() { n.stop = true }

// Logger returns the logger progress is reported to.
func (n *Net) Logger() *log.Logger { return n.logger }

// SpatialLayers returns the spatial stack in order.
func (n *Net) SpatialLayers() []layer.Spatial { return n.spatial }

// FlatLayers returns the flat stack in order.
func (n *Net) FlatLayers() []layer.Flat { return n.flat }

// InputLen is the number of values Forward expects.
func (n *Net) InputLen() int {
	if len(n.spatial) > 0 {
		return n.spatial[0].InputSize().Len()
	}
	return n.flat[0].InputSize()
}

// ParamCount returns the number of trainable parameters.
func (n *Net) ParamCount() int {
	total := 0
	for _, l := range n.spatial {
		total += l.ParamCount()
	}
	for _, l := range n.flat {
		total += l.ParamCount()
	}
	return total
}

// Summary writes a table of the layers, their output shapes and parameter counts.
func (n *Net) Summary(w io.Writer) {
	fmt.Fprintln(w, "Model: convnet")
	fmt.Fprintln(w, "_________________________________________________________________")
	fmt.Fprintf(w, "%-40s %-14s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, "=================================================================")
	for _, l := range n.spatial {
		fmt.Fprintf(w, "%-40s %-14s %-10d\n", l, l.OutputSize(), l.ParamCount())
	}
	for _, l := range n.flat {
		fmt.Fprintf(w, "%-40s %-14s %-10d\n", l, fmt.Sprintf("(%d)", l.OutputSize()), l.ParamCount())
	}
	fmt.Fprintln(w, "=================================================================")
	fmt.Fprintf(w, "Total params: %d\n", n.ParamCount())
	fmt.Fprintln(w, "_________________________________________________________________")
}

func (n *Net) loss(out, y []float64) float64 {
	return n.objective.Forward(out, y)
}

// Metrics counts classification results over a set of samples.
type Metrics struct {
	Samples  int
	Correct  int
	Accuracy float64
	// Loss is the mean per-sample loss: cross-entropy for a Softmax output,
	// mean squared error for a Dense one.
	Loss float64
}

func (m *Metrics) add(hit bool, l float64) {
	m.Samples++
	if hit {
		m.Correct++
	}
	m.Loss += l
}

func (m *Metrics) finish() {
	if m.Samples == 0 {
		return
	}
	m.Accuracy = float64(m.Correct) / float64(m.Samples)
	m.Loss /= float64(m.Samples)
}

func (m Metrics) String() string {
	return fmt.Sprintf("acc=%.4f loss=%.4f (%d/%d)", m.Accuracy, m.Loss, m.Correct, m.Samples)
}
