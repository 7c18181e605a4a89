package main

import (
	"flag"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hadz2damax/NILM/src/dataset"
	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/hmm"
)

var (
	outDir  = flag.String("out", "sim", "output directory")
	samples = flag.Int("n", 1440, "samples per series")
	seed    = flag.Uint64("seed", 42, "random seed")
	period  = flag.Duration("period", time.Minute, "sample period")
)

func init() {
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

// appliances are rough household loads: a cycling fridge, a rarely used
// kettle and a three-level washing machine.
var appliances = []struct {
	name    string
	process hmm.Process
}{
	{"fridge", hmm.Process{
		StartProb: []float64{0.6, 0.4},
		TransMat: mat.NewDense(2, 2, []float64{
			0.95, 0.05,
			0.08, 0.92,
		}),
		Means:  []float64{0, 90},
		Covars: []float64{1, 25},
	}},
	{"kettle", hmm.Process{
		StartProb: []float64{1, 0},
		TransMat: mat.NewDense(2, 2, []float64{
			0.99, 0.01,
			0.40, 0.60,
		}),
		Means:  []float64{0, 2000},
		Covars: []float64{1, 400},
	}},
	{"washer", hmm.Process{
		StartProb: []float64{1, 0, 0},
		TransMat: mat.NewDense(3, 3, []float64{
			0.98, 0.02, 0.00,
			0.05, 0.85, 0.10,
			0.05, 0.15, 0.80,
		}),
		Means:  []float64{0, 250, 1800},
		Covars: []float64{1, 100, 900},
	}},
}

func main() {
	trainDir := filepath.Join(*outDir, "train")
	if err := os.MkdirAll(trainDir, 0o755); err != nil {
		log.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	start := time.Now().UTC().Truncate(*period)
	index := make([]time.Time, *samples)
	for i := range index {
		index[i] = start.Add(time.Duration(i) * *period)
	}

	// Each appliance gets an independent training trace and a test trace;
	// the test traces sum to the mains.
	mains := make([]float64, *samples)
	for _, a := range appliances {
		_, train, err := hmm.Sample(a.process, *samples, rng)
		if err != nil {
			log.Fatal(err)
		}
		_, test, err := hmm.Sample(a.process, *samples, rng)
		if err != nil {
			log.Fatal(err)
		}
		floats.Add(mains, test)

		if err := dataset.WriteSeries(filepath.Join(trainDir, a.name+".csv"), disaggregate.Series{Index: index, Values: train}); err != nil {
			log.Fatal(err)
		}
		if err := dataset.WriteSeries(filepath.Join(*outDir, a.name+".truth.csv"), disaggregate.Series{Index: index, Values: test}); err != nil {
			log.Fatal(err)
		}
	}

	if err := dataset.WriteSeries(filepath.Join(*outDir, "mains.csv"), disaggregate.Series{Index: index, Values: mains}); err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{
		"DIR":        *outDir,
		"SAMPLES":    *samples,
		"APPLIANCES": len(appliances),
	}).Info("SIMULATE: WROTE DATASET")
}
