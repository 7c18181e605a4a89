// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/metrics"
)

type Config struct {
	LogLevel log.Level

	// NumStates fixes the per-appliance state count; zero lets clustering
	// choose.
	NumStates          int
	Seed               uint64
	ApplianceThreshold int
	MaxJointStates     int
	ModelPath          string

	HTTPAddr  string
	PprofAddr string

	KafkaBrokers     []string
	MainsTopic       string
	PredictionsTopic string
	KafkaGroup       string
	// Window is the number of readings per meter decoded at a time.
	Window int
}

func Default() Config {
	return Config{
		LogLevel:           log.InfoLevel,
		NumStates:          0,
		Seed:               42,
		ApplianceThreshold: 12,
		MaxJointStates:     8192,
		ModelPath:          "model.json",
		HTTPAddr:           ":8080",
		KafkaBrokers:       []string{"localhost:9092"},
		MainsTopic:         "nilm.mains",
		PredictionsTopic:   "nilm.predictions",
		KafkaGroup:         "nilm-disaggregator",
		Window:             60,
	}
}

// Load reads envFile if it exists, without overriding variables already set,
// then builds a Config from the NILM_* variables. Unset variables keep their
// defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	c := Default()
	var err error
	if v, ok := os.LookupEnv("NILM_LOG_LEVEL"); ok {
		if c.LogLevel, err = log.ParseLevel(v); err != nil {
			return Config{}, fmt.Errorf("config: NILM_LOG_LEVEL: %w", err)
		}
	}
	if err = intVar("NILM_NUM_STATES", &c.NumStates, 0); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv("NILM_SEED"); ok {
		if c.Seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("config: NILM_SEED: %w", err)
		}
	}
	if err = intVar("NILM_APPLIANCE_THRESHOLD", &c.ApplianceThreshold, 0); err != nil {
		return Config{}, err
	}
	if err = intVar("NILM_MAX_JOINT_STATES", &c.MaxJointStates, 1); err != nil {
		return Config{}, err
	}
	if err = intVar("NILM_WINDOW", &c.Window, 1); err != nil {
		return Config{}, err
	}

	stringVar("NILM_MODEL_PATH", &c.ModelPath)
	stringVar("NILM_HTTP_ADDR", &c.HTTPAddr)
	stringVar("NILM_PPROF_ADDR", &c.PprofAddr)
	stringVar("NILM_MAINS_TOPIC", &c.MainsTopic)
	stringVar("NILM_PREDICTIONS_TOPIC", &c.PredictionsTopic)
	stringVar("NILM_KAFKA_GROUP", &c.KafkaGroup)
	if v, ok := os.LookupEnv("NILM_KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitList(v)
	}
	return c, nil
}

// FHMMOptions turns the model settings into disaggregator options.
func (c Config) FHMMOptions(m *metrics.Metrics) []disaggregate.Option {
	return []disaggregate.Option{
		disaggregate.WithNumStates(c.NumStates),
		disaggregate.WithSeed(c.Seed),
		disaggregate.WithApplianceThreshold(c.ApplianceThreshold),
		disaggregate.WithMaxJointStates(c.MaxJointStates),
		disaggregate.WithMetrics(m),
	}
}

func intVar(key string, dst *int, min int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if n < min {
		return fmt.Errorf("config: %s: %d is below %d", key, n, min)
	}
	*dst = n
	return nil
}

func stringVar(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
