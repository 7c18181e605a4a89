// Package metrics exposes Prometheus instruments for model fitting,
// disaggregation, the HTTP API and the stream processor.
//
// Every method is safe on a nil *Metrics so callers can run without a
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nilm"

type Metrics struct {
	fitDuration       prometheus.Histogram
	appliancesTrained prometheus.Gauge
	appliancesSkipped prometheus.Counter
	jointStates       prometheus.Gauge

	decodeDuration prometheus.Histogram
	decodedSamples prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	streamMessages *prometheus.CounterVec
	streamWindows  prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Time spent estimating appliance processes and composing the joint model.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		appliancesTrained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "appliances_trained",
			Help:      "Number of appliances in the current joint model.",
		}),
		appliancesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appliances_skipped_total",
			Help:      "Appliances left out of training because they had no usable samples.",
		}),
		jointStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "joint_states",
			Help:      "Size of the joint state space of the current model.",
		}),
		decodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one mains series.",
			Buckets:   prometheus.DefBuckets,
		}),
		decodedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoded_samples_total",
			Help:      "Mains samples disaggregated.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Mains readings consumed by outcome.",
		}, []string{"result"}),
		streamWindows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_windows_total",
			Help:      "Windows of readings disaggregated and published.",
		}),
	}

	reg.MustRegister(
		m.fitDuration,
		m.appliancesTrained,
		m.appliancesSkipped,
		m.jointStates,
		m.decodeDuration,
		m.decodedSamples,
		m.httpRequests,
		m.httpDuration,
		m.streamMessages,
		m.streamWindows,
	)
	return m
}

// ObserveFit records a completed training run.
func (m *Metrics) ObserveFit(d time.Duration, appliances, jointStates int) {
	if m == nil {
		return
	}
	m.fitDuration.Observe(d.Seconds())
	m.appliancesTrained.Set(float64(appliances))
	m.jointStates.Set(float64(jointStates))
}

func (m *Metrics) ApplianceSkipped() {
	if m == nil {
		return
	}
	m.appliancesSkipped.Inc()
}

func (m *Metrics) ObserveDecode(d time.Duration, samples int) {
	if m == nil {
		return
	}
	m.decodeDuration.Observe(d.Seconds())
	m.decodedSamples.Add(float64(samples))
}

func (m *Metrics) StreamMessage(result string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) StreamWindow() {
	if m == nil {
		return
	}
	m.streamWindows.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
