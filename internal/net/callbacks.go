package net

import "math"

// Callback observes training driven by Net.Fit and Net.Train.
type Callback interface {
	OnTrainBegin(n *Net)
	OnTrainEnd(n *Net)
	OnEpochBegin(epoch int, n *Net)
	OnEpochEnd(epoch int, stats EpochStats, n *Net)
	// OnProgress receives the metrics of the last reporting window of Train.
	OnProgress(sample int, window Metrics, n *Net)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(n *Net)                            {}
func (c BaseCallback) OnTrainEnd(n *Net)                              {}
func (c BaseCallback) OnEpochBegin(epoch int, n *Net)                 {}
func (c BaseCallback) OnEpochEnd(epoch int, stats EpochStats, n *Net) {}
func (c BaseCallback) OnProgress(sample int, window Metrics, n *Net)  {}

// EarlyStopping stops training when the monitored loss has stopped improving.
// It monitors the test loss when Fit has test samples and the training loss otherwise.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.MaxFloat64,
	}
}

func (c *EarlyStopping) OnTrainBegin(n *Net) {
	c.bestLoss = math.MaxFloat64
	c.numBadEpochs = 0
	c.Stopped = false
}

func (c *EarlyStopping) OnEpochEnd(epoch int, stats EpochStats, n *Net) {
	loss := stats.Train.Loss
	if stats.Test.Samples > 0 {
		loss = stats.Test.Loss
	}

	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if c.numBadEpochs >= c.Patience {
		n.Logger().Printf("early stopping at epoch %d: loss %.6f did not improve for %d epochs", epoch, loss, c.Patience)
		c.Stopped = true
		n.StopTraining()
	}
}

// Logger logs a line per epoch every Interval epochs.
type Logger struct {
	BaseCallback
	Interval int
}

func (c Logger) OnEpochEnd(epoch int, stats EpochStats, n *Net) {
	if c.Interval > 0 && epoch%c.Interval == 0 {
		n.Logger().Printf("Epoch %d: loss = %.6f accuracy = %.4f", epoch, stats.Train.Loss, stats.Train.Accuracy)
	}
}
