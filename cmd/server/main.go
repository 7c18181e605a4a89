package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/api"
	"github.com/hadz2damax/NILM/src/config"
	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/metrics"
	"github.com/hadz2damax/NILM/src/profiler"
	"github.com/hadz2damax/NILM/src/store"
)

var (
	envFile   = flag.String("env", ".env", "optional .env file")
	addr      = flag.String("addr", "", "listen address (default NILM_HTTP_ADDR)")
	algorithm = flag.String("algorithm", store.AlgorithmFHMM, "algorithm used when no model file exists")

	cfg config.Config
)

func init() {
	flag.Parse()

	var err error
	if cfg, err = config.Load(*envFile); err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewHostCollector("/proc"),
	)
	m := metrics.New(reg)

	d, err := disaggregate.Load(cfg.ModelPath, cfg.FHMMOptions(m)...)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithFields(log.Fields{
			"PATH": cfg.ModelPath,
		}).Warn("SERVER: NO MODEL FILE, WAITING FOR POST /train")
		d, err = disaggregate.New(*algorithm, cfg.FHMMOptions(m)...)
	}
	if err != nil {
		log.Fatal(err)
	}

	if cfg.PprofAddr != "" {
		pp := profiler.StartProfilerServer(cfg.PprofAddr)
		defer pp.Close()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(d, m, reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdown); err != nil {
			log.WithFields(log.Fields{
				"ERROR": err,
			}).Error("SERVER: SHUTDOWN FAILED")
		}
	}()

	log.WithFields(log.Fields{
		"ADDR": cfg.HTTPAddr,
	}).Info("SERVER: LISTENING")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
