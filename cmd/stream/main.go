package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/config"
	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/metrics"
	"github.com/hadz2damax/NILM/src/profiler"
	"github.com/hadz2damax/NILM/src/stream"
)

var (
	envFile = flag.String("env", ".env", "optional .env file")
	window  = flag.Int("window", 0, "readings per decoded window (default NILM_WINDOW)")

	cfg config.Config
)

func init() {
	flag.Parse()

	var err error
	if cfg, err = config.Load(*envFile); err != nil {
		log.Fatal(err)
	}
	if *window > 0 {
		cfg.Window = *window
	}

	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	d, err := disaggregate.Load(cfg.ModelPath, cfg.FHMMOptions(m)...)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.PprofAddr != "" {
		pp := profiler.StartProfilerServer(cfg.PprofAddr)
		defer pp.Close()
	}

	go func() {
		if err := http.ListenAndServe(cfg.HTTPAddr, promhttp.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(log.Fields{
				"ERROR": err,
			}).Error("STREAM: METRICS SERVER STOPPED")
		}
	}()

	reader := stream.NewKafkaReader(cfg.KafkaBrokers, cfg.MainsTopic, cfg.KafkaGroup)
	defer reader.Close()
	writer := stream.NewKafkaWriter(cfg.KafkaBrokers, cfg.PredictionsTopic)
	defer writer.Close()

	log.WithFields(log.Fields{
		"BROKERS": cfg.KafkaBrokers,
		"IN":      cfg.MainsTopic,
		"OUT":     cfg.PredictionsTopic,
	}).Info("STREAM: STARTING")
	if err := stream.NewProcessor(reader, writer, d, cfg.Window, m).Run(ctx); err != nil {
		log.Fatal(err)
	}
}
