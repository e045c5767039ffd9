package net

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CSVLogger logs one row per epoch to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
}

var csvHeader = []string{"epoch", "alpha", "loss", "accuracy", "test_loss", "test_accuracy", "time_seconds"}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(n *Net) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		n.Logger().Printf("CSVLogger: failed to open file %s: %v", c.Filename, err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write(csvHeader)
		c.writer.Flush()
	}
}

func (c *CSVLogger) OnEpochEnd(epoch int, stats EpochStats, n *Net) {
	if c.writer == nil {
		return
	}

	elapsed := time.Since(c.start).Seconds()
	record := []string{
		strconv.Itoa(epoch),
		strconv.FormatFloat(stats.Alpha, 'g', -1, 64),
		fmt.Sprintf("%.6f", stats.Train.Loss),
		fmt.Sprintf("%.6f", stats.Train.Accuracy),
		fmt.Sprintf("%.6f", stats.Test.Loss),
		fmt.Sprintf("%.6f", stats.Test.Accuracy),
		fmt.Sprintf("%.2f", elapsed),
	}

	if err := c.writer.Write(record); err != nil {
		n.Logger().Printf("CSVLogger: failed to write record: %v", err)
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnTrainEnd(n *Net) {
	if c.file != nil {
		c.writer.Flush()
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}
