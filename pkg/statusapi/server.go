// Package statusapi exposes the supervisor's process pool and the core's
// capability health over a small HTTP surface: /health (aggregate component
// health), /ready (capability readiness), /live (liveness), /status
// (per-process snapshot), and /metrics (Prometheus scrape target).
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Azure/contentflow-sub002/pkg/metrics"
	"github.com/Azure/contentflow-sub002/pkg/supervisor"
)

// ProcessLister supplies the per-process snapshot the /status endpoint
// serializes. *supervisor.Supervisor satisfies this directly.
type ProcessLister interface {
	Snapshot() []supervisor.ProcessStatus
}

// StatusResponse is the /status endpoint's response body.
type StatusResponse struct {
	Processes []supervisor.ProcessStatus `json:"processes"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Server is the status HTTP surface's ServeMux wrapper.
type Server struct {
	mux    *http.ServeMux
	lister ProcessLister
}

// NewServer builds a Server. lister may be nil, in which case /status
// always reports an empty process list (useful for a bare processing
// worker that doesn't itself supervise other processes).
func NewServer(lister ProcessLister, version string) *Server {
	s := &Server{mux: http.NewServeMux(), lister: lister}
	metrics.SetVersion(version)

	s.mux.Handle("/health", metrics.HealthHandler())
	s.mux.Handle("/ready", metrics.ReadyHandler())
	s.mux.Handle("/live", metrics.LivenessHandler())
	s.mux.HandleFunc("/status", s.statusHandler)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// Handler returns the underlying http.Handler for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the status HTTP surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var processes []supervisor.ProcessStatus
	if s.lister != nil {
		processes = s.lister.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(StatusResponse{Processes: processes, Timestamp: time.Now()})
}
