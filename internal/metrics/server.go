package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the per-round health report served on /health.
type Status struct {
	LastRound time.Time         `json:"last_round"`
	Healthy   bool              `json:"healthy"`
	Probes    map[string]string `json:"probes,omitempty"`
}

// StatusFunc reports the orchestrator's view of the last round.
type StatusFunc func() Status

// Server exposes /metrics and /health.
type Server struct {
	server *http.Server
}

// NewServer creates the exposition server.
func NewServer(registry *Registry, status StatusFunc, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := status()
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
