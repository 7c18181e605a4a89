package profiler

import (
	"errors"
	"net/http"
	"net/http/pprof"

	log "github.com/sirupsen/logrus"
)

// StartProfilerServer serves the pprof endpoints on addr in the background.
// The returned server can be shut down by the caller.
func StartProfilerServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithFields(log.Fields{
			"ADDR": addr,
		}).Info("PROFILER: SERVING PPROF")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(log.Fields{
				"ERROR": err,
			}).Error("PROFILER: SERVER STOPPED")
		}
	}()
	return srv
}
