package convnet

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade(t *testing.T) {
	top := Topology{
		Spatial: []SpatialSpec{
			{Kind: Conv2d, InputSize: Size{Height: 5, Width: 5, Depth: 1}, KernelDim: 3, Stride: 1, KernelNum: 2, Activation: ReLU},
			{Kind: Maxpool, InputSize: Size{Height: 3, Width: 3, Depth: 2}, KernelDim: 1},
		},
		Flat: []FlatSpec{
			{Kind: Softmax, InputSize: 18, OutputSize: 3},
		},
	}
	n, err := New(top, WithLogger(log.New(io.Discard, "", 0)), WithSeed(1), WithWorkers(2))
	require.NoError(t, err)

	out := n.Predict(NewTensor(5, 5, 1))
	assert.Len(t, out, 3)

	label, err := OneHot(1, 3)
	require.NoError(t, err)
	samples := []LabeledSample{{Label: label, Input: NewTensor(5, 5, 1)}}
	history := n.Fit(samples, nil, 2, StepDecay(0.1, 1, 0.5))
	assert.Len(t, history, 2)
	assert.Equal(t, 0.05, history[1].Alpha)

	_, err = New(Topology{})
	assert.ErrorIs(t, err, ErrNoFlatLayers)
}
