package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/FlavioCFOliveira/convnet/internal/tensor"
)

// CSV loads Kaggle-style rows of "label,pixel0,pixel1,...". Pixels are
// scaled to [0, 1] by dividing by 255.
type CSV struct {
	Path      string
	HasHeader bool

	// Height and Width of each image; 28x28 when zero.
	Height, Width int
	// Classes is the one-hot width; 10 when zero.
	Classes int
	// Limit caps the number of samples read; zero reads all.
	Limit int
}

func (l CSV) Load() ([]LabeledSample, error) {
	file, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	samples, err := l.read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Path, err)
	}
	return samples, nil
}

func (l CSV) read(r io.Reader) ([]LabeledSample, error) {
	h, w, classes := l.Height, l.Width, l.Classes
	if h == 0 || w == 0 {
		h, w = 28, 28
	}
	if classes == 0 {
		classes = 10
	}
	cols := 1 + h*w

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	if l.HasHeader {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}

	var samples []LabeledSample
	for row := 1; l.Limit <= 0 || len(samples) < l.Limit; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if len(record) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShortRecord, row, len(record), cols)
		}

		label, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid label at row %d: %w", row, err)
		}
		hot, err := OneHot(label, classes)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		input := tensor.New(h, w, 1)
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid pixel at row %d, column %d: %w", row, j+1, err)
			}
			input.Raw()[j] = v / pixelScale
		}
		samples = append(samples, LabeledSample{Label: hot, Input: input})
	}
	return samples, nil
}
