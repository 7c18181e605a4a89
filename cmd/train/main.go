package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/config"
	"github.com/hadz2damax/NILM/src/dataset"
	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/store"
)

var (
	envFile   = flag.String("env", ".env", "optional .env file")
	dataDir   = flag.String("data", "train", "directory with one <appliance>.csv per appliance")
	out       = flag.String("out", "", "model output path (default NILM_MODEL_PATH)")
	algorithm = flag.String("algorithm", store.AlgorithmFHMM, "fhmm_exact or mean")
	numStates = flag.Int("states", -1, "states per appliance, 0 to cluster (default NILM_NUM_STATES)")

	cfg config.Config
)

func init() {
	flag.Parse()

	var err error
	if cfg, err = config.Load(*envFile); err != nil {
		log.Fatal(err)
	}
	if *out != "" {
		cfg.ModelPath = *out
	}
	if *numStates >= 0 {
		cfg.NumStates = *numStates
	}

	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

func main() {
	trains, err := dataset.ReadTrainDir(*dataDir)
	if err != nil {
		log.Fatal(err)
	}

	d, err := disaggregate.New(*algorithm, cfg.FHMMOptions(nil)...)
	if err != nil {
		log.Fatal(err)
	}
	if err := d.PartialFit(trains); err != nil {
		log.Fatal(err)
	}
	if err := disaggregate.Save(cfg.ModelPath, d); err != nil {
		log.Fatal(err)
	}

	summary, err := d.Model()
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{
		"PATH":         cfg.ModelPath,
		"ORDER":        summary.Order,
		"SKIPPED":      summary.Skipped,
		"JOINT_STATES": summary.JointStates,
	}).Info("TRAIN: MODEL WRITTEN")
}
