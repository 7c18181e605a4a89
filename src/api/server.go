// Package api serves training and disaggregation over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/disaggregate"
	"github.com/hadz2damax/NILM/src/fhmm"
	"github.com/hadz2damax/NILM/src/metrics"
)

// maxBodyBytes bounds request bodies; training data for a house fits well
// within it.
const maxBodyBytes = 64 << 20

type Server struct {
	dis      disaggregate.Disaggregator
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	router   *mux.Router
}

// NewServer routes requests to dis. gatherer backs /metrics and may be nil,
// in which case the route is not registered.
func NewServer(dis disaggregate.Disaggregator, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		dis:      dis,
		metrics:  m,
		gatherer: gatherer,
		router:   mux.NewRouter(),
	}

	s.handle("/health", s.health, http.MethodGet)
	s.handle("/model", s.model, http.MethodGet)
	s.handle("/train", s.train, http.MethodPost)
	s.handle("/disaggregate", s.disaggregate, http.MethodPost)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) handle(route string, h http.HandlerFunc, method string) {
	s.router.Handle(route, s.metrics.WrapHandler(route, h)).Methods(method)
}

// Handler wraps the router with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(s.router)
	return handlers.LoggingHandler(log.StandardLogger().Writer(), recovered)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) model(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dis.Model()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type trainRequest struct {
	Appliances []disaggregate.ApplianceTrain `json:"appliances"`
}

func (s *Server) train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if err := s.dis.PartialFit(req.Appliances); err != nil {
		log.WithFields(log.Fields{
			"APPLIANCES": len(req.Appliances),
			"ERROR":      err,
		}).Warn("API: TRAINING FAILED")
		writeError(w, err)
		return
	}

	summary, err := s.dis.Model()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type disaggregateResponse struct {
	ID    string              `json:"id"`
	Table *disaggregate.Table `json:"table"`
}

func (s *Server) disaggregate(w http.ResponseWriter, r *http.Request) {
	var mains disaggregate.Series
	if err := decode(w, r, &mains); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := mains.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	table, err := s.dis.Disaggregate(mains)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disaggregateResponse{
		ID:    uuid.NewString(),
		Table: table,
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var cfg *fhmm.ConfigurationError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, disaggregate.ErrNotTrained):
		status = http.StatusServiceUnavailable
	case errors.Is(err, disaggregate.ErrNoAppliances):
		status = http.StatusBadRequest
	case errors.As(err, &cfg):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{
			"ERROR": err,
		}).Warn("API: FAILED TO WRITE RESPONSE")
	}
}
