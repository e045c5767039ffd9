// Command mnistcnn trains a convolutional network on MNIST-style digits.
//
// Samples come either from a pair of IDX files (optionally gzip-compressed)
// or from a Kaggle-style CSV. They are split in order into training and test
// sets, the network trains with per-sample SGD for a number of epochs and
// the test accuracy is reported at the end.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/FlavioCFOliveira/convnet/internal/dataset"
	"github.com/FlavioCFOliveira/convnet/internal/net"
	"github.com/FlavioCFOliveira/convnet/internal/opt"
	"github.com/FlavioCFOliveira/convnet/internal/parallel"
	"golang.org/x/exp/rand"
)

type config struct {
	images, labels string
	csvPath        string
	csvHeader      bool
	topology       string
	dumpTopology   bool

	epochs     int
	alpha      float64
	decayEvery int
	decay      float64
	trainFrac  float64
	limit      int
	report     int
	workers    int
	metrics    string
	patience   int
	seed       uint64
	shuffle    bool
}

func parseFlags() config {
	var c config
	flag.StringVar(&c.images, "images", "", "IDX image file (e.g. train-images-idx3-ubyte.gz)")
	flag.StringVar(&c.labels, "labels", "", "IDX label file (e.g. train-labels-idx1-ubyte.gz)")
	flag.StringVar(&c.csvPath, "csv", "", "CSV file of label,pixel... rows; used instead of -images/-labels")
	flag.BoolVar(&c.csvHeader, "csv-header", true, "CSV file starts with a header row")
	flag.StringVar(&c.topology, "topology", "", "YAML topology file (default: reference MNIST network)")
	flag.BoolVar(&c.dumpTopology, "dump-topology", false, "Print the topology as YAML and exit")
	flag.IntVar(&c.epochs, "epochs", 15, "Number of training epochs")
	flag.Float64Var(&c.alpha, "alpha", 0.05, "SGD step size")
	flag.IntVar(&c.decayEvery, "decay-every", 0, "Multiply the step size by -decay every N epochs (0 = constant)")
	flag.Float64Var(&c.decay, "decay", 0.5, "Step size decay factor")
	flag.Float64Var(&c.trainFrac, "train-frac", 0.8, "Fraction of samples used for training")
	flag.IntVar(&c.limit, "limit", 0, "Max samples to load (0 = all)")
	flag.IntVar(&c.report, "report", 100, "Log training accuracy every N samples (0 = off)")
	flag.IntVar(&c.workers, "workers", parallel.Workers(), "Goroutines for convolution work (1 = sequential)")
	flag.StringVar(&c.metrics, "metrics", "", "Write per-epoch metrics to this CSV file")
	flag.IntVar(&c.patience, "patience", 0, "Stop after N epochs without improvement (0 = off)")
	flag.Uint64Var(&c.seed, "seed", 0, "Seed for initialisation and shuffling (0 = random)")
	flag.BoolVar(&c.shuffle, "shuffle", false, "Shuffle the training samples before every epoch")
	flag.Parse()
	return c
}

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("mnistcnn: ")

	if err := run(parseFlags()); err != nil {
		log.Fatal(err)
	}
}

func run(c config) error {
	top := net.MNISTTopology()
	if c.topology != "" {
		var err error
		if top, err = net.LoadTopology(c.topology); err != nil {
			return err
		}
	}
	if c.dumpTopology {
		return top.WriteYAML(os.Stdout)
	}

	loader, err := c.loader()
	if err != nil {
		return err
	}

	log.Printf("cpu: %s", parallel.Describe())

	samples, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	train, test := dataset.Split(samples, c.trainFrac)
	log.Printf("loaded %d samples: %d train, %d test", len(samples), len(train), len(test))

	seed := c.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	var callbacks []net.Callback
	if c.metrics != "" {
		callbacks = append(callbacks, net.NewCSVLogger(c.metrics, false))
	}
	if c.patience > 0 {
		callbacks = append(callbacks, net.NewEarlyStopping(c.patience, 0))
	}
	if c.shuffle {
		callbacks = append(callbacks, &shuffler{samples: train, rng: rand.New(rand.NewSource(seed + 1))})
	}

	n, err := net.New(top,
		net.WithLogger(log.Default()),
		net.WithReportEvery(c.report),
		net.WithParallel(parallel.WithWorkers(c.workers)),
		net.WithCallbacks(callbacks...),
		net.WithSeed(seed),
	)
	if err != nil {
		return err
	}
	n.Summary(log.Writer())

	var schedule opt.Schedule = opt.Constant(c.alpha)
	if c.decayEvery > 0 {
		schedule = opt.NewStepDecay(c.alpha, c.decayEvery, c.decay)
	}

	n.Fit(train, nil, c.epochs, schedule)
	n.Test(test)
	return nil
}

func (c config) loader() (dataset.Loader, error) {
	switch {
	case c.csvPath != "":
		return dataset.CSV{Path: c.csvPath, HasHeader: c.csvHeader, Limit: c.limit}, nil
	case c.images != "" && c.labels != "":
		return dataset.IDX{Images: c.images, Labels: c.labels, Limit: c.limit}, nil
	default:
		return nil, errors.New("either -csv or both -images and -labels are required")
	}
}

// shuffler reorders the training samples before each epoch.
type shuffler struct {
	net.BaseCallback
	samples []dataset.LabeledSample
	rng     *rand.Rand
}

func (s *shuffler) OnEpochBegin(epoch int, n *net.Net) {
	dataset.Shuffle(s.samples, s.rng)
}
