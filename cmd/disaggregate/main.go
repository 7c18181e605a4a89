package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/config"
	"github.com/hadz2damax/NILM/src/dataset"
	"github.com/hadz2damax/NILM/src/disaggregate"
)

var (
	envFile = flag.String("env", ".env", "optional .env file")
	model   = flag.String("model", "", "model path (default NILM_MODEL_PATH)")
	mains   = flag.String("mains", "mains.csv", "mains CSV of timestamp,power")
	out     = flag.String("out", "predictions.csv", "prediction CSV output")

	cfg config.Config
)

func init() {
	flag.Parse()

	var err error
	if cfg, err = config.Load(*envFile); err != nil {
		log.Fatal(err)
	}
	if *model != "" {
		cfg.ModelPath = *model
	}

	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

func main() {
	d, err := disaggregate.Load(cfg.ModelPath, cfg.FHMMOptions(nil)...)
	if err != nil {
		log.Fatal(err)
	}

	series, err := dataset.ReadSeries(*mains)
	if err != nil {
		log.Fatal(err)
	}

	table, err := d.Disaggregate(series)
	if err != nil {
		log.Fatal(err)
	}
	if err := dataset.WriteTable(*out, table); err != nil {
		log.Fatal(err)
	}

	log.WithFields(log.Fields{
		"ROWS":    table.Rows(),
		"COLUMNS": table.Columns,
		"OUT":     *out,
	}).Info("DISAGGREGATE: PREDICTIONS WRITTEN")
}
