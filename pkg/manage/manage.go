// Package manage provides HTTP handlers for inspecting live statistics.
package manage

import (
	"encoding/json"
	"net/http"

	"github.com/pixmeta/pixmeta/pkg/pixmeta"
	"k8s.io/klog/v2"
)

// Server serves read-only views of a statistics store.
type Server struct {
	store *pixmeta.Store
}

// New creates a new server backed by store.
func New(store *pixmeta.Store) *Server {
	return &Server{store: store}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.StatsHandler())
	mux.HandleFunc("/healthz", s.HealthHandler())
	return mux
}

// StatsHandler serves the current statistics snapshot as JSON.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := s.store.Snapshot()
		// The fingerprint index is internal bookkeeping, not a stat.
		snap.ProcessedImages = nil

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			klog.Errorf("encode stats: %v", err)
		}
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
