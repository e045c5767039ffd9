package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func writeIDX(t *testing.T, path string, gz bool, header []uint32, body []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, header))
	buf.Write(body)

	data := buf.Bytes()
	if gz {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = zbuf.Bytes()
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// writeMNIST writes three 2x2 images labelled 3, 0, 9.
func writeMNIST(t *testing.T, dir string, gz bool) IDX {
	t.Helper()
	images := filepath.Join(dir, "images.idx")
	labels := filepath.Join(dir, "labels.idx")
	writeIDX(t, images, gz, []uint32{idxImagesMagic, 3, 2, 2}, []byte{
		0, 255, 51, 102,
		255, 255, 255, 255,
		0, 0, 0, 0,
	})
	writeIDX(t, labels, gz, []uint32{idxLabelsMagic, 3}, []byte{3, 0, 9})
	return IDX{Images: images, Labels: labels}
}

func TestIDX_Load(t *testing.T) {
	for _, gz := range []bool{false, true} {
		loader := writeMNIST(t, t.TempDir(), gz)

		samples, err := loader.Load()
		require.NoError(t, err, "gzip=%v", gz)
		require.Len(t, samples, 3)

		assert.Equal(t, tensor.Size{Height: 2, Width: 2, Depth: 1}, samples[0].Input.Size())
		assert.InDeltaSlice(t, []float64{0, 1, 0.2, 0.4}, samples[0].Input.Flatten(), 1e-12)
		assert.Equal(t, []float64{0, 0, 0, 1, 0, 0, 0, 0, 0, 0}, samples[0].Label)
		assert.Equal(t, 0, samples[1].Class())
		assert.Equal(t, 9, samples[2].Class())
	}
}

func TestIDX_Limit(t *testing.T) {
	loader := writeMNIST(t, t.TempDir(), false)
	loader.Limit = 2

	samples, err := loader.Load()
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestIDX_Errors(t *testing.T) {
	dir := t.TempDir()
	loader := writeMNIST(t, dir, false)

	swapped := IDX{Images: loader.Labels, Labels: loader.Images}
	_, err := swapped.Load()
	assert.ErrorIs(t, err, ErrBadMagic)

	short := filepath.Join(dir, "short.idx")
	writeIDX(t, short, false, []uint32{idxImagesMagic, 3, 2, 2}, []byte{1, 2, 3})
	_, err = IDX{Images: short, Labels: loader.Labels}.Load()
	assert.ErrorIs(t, err, ErrShortRecord)

	_, err = IDX{Images: loader.Images, Labels: loader.Labels, Classes: 5}.Load()
	assert.ErrorIs(t, err, ErrLabelRange)

	_, err = IDX{Images: filepath.Join(dir, "missing"), Labels: loader.Labels}.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSV_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	content := strings.Join([]string{
		"label,p0,p1,p2,p3",
		"1,0,255,0,51",
		"2,255,0,0,0",
		"0,0,0,0,0",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := CSV{Path: path, HasHeader: true, Height: 2, Width: 2, Classes: 3}
	samples, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, []float64{0, 1, 0}, samples[0].Label)
	assert.InDeltaSlice(t, []float64{0, 1, 0, 0.2}, samples[0].Input.Flatten(), 1e-12)
	assert.Equal(t, 2, samples[1].Class())

	loader.Limit = 1
	samples, err = loader.Load()
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestCSV_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	_, err := CSV{Path: write("cols.csv", "1,0,0\n"), Height: 2, Width: 2}.Load()
	assert.ErrorIs(t, err, ErrShortRecord)

	_, err = CSV{Path: write("range.csv", "12,0,0,0,0\n"), Height: 2, Width: 2}.Load()
	assert.ErrorIs(t, err, ErrLabelRange)

	_, err = CSV{Path: write("pixel.csv", "1,0,x,0,0\n"), Height: 2, Width: 2}.Load()
	assert.Error(t, err)
}

func TestOneHot(t *testing.T) {
	v, err := OneHot(2, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, v)

	_, err = OneHot(4, 4)
	assert.ErrorIs(t, err, ErrLabelRange)
	_, err = OneHot(-1, 4)
	assert.ErrorIs(t, err, ErrLabelRange)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0.1, 0.7, 0.2}))
	assert.Equal(t, 0, ArgMax([]float64{0.5, 0.5}))
}

func numbered(n int) []LabeledSample {
	samples := make([]LabeledSample, n)
	for i := range samples {
		samples[i] = LabeledSample{Label: []float64{float64(i)}, Input: tensor.New(1, 1, 1)}
	}
	return samples
}

func TestSplit(t *testing.T) {
	samples := numbered(10)
	train, test := Split(samples, 0.8)
	require.Len(t, train, 8)
	require.Len(t, test, 2)
	assert.Equal(t, 0.0, train[0].Label[0])
	assert.Equal(t, 8.0, test[0].Label[0])

	train, test = Split(samples, 0)
	assert.Empty(t, train)
	assert.Len(t, test, 10)

	train, test = Split(samples, 1.5)
	assert.Len(t, train, 10)
	assert.Empty(t, test)
}

func TestShuffle(t *testing.T) {
	a, b := numbered(20), numbered(20)
	Shuffle(a, rand.New(rand.NewSource(1)))
	Shuffle(b, rand.New(rand.NewSource(1)))
	assert.Equal(t, a, b)

	seen := make(map[float64]bool)
	for _, s := range a {
		seen[s.Label[0]] = true
	}
	assert.Len(t, seen, 20)
}

func TestStatic(t *testing.T) {
	var loader Loader = Static(numbered(3))
	samples, err := loader.Load()
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}
