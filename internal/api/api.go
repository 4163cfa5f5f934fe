// Package api exposes a small read-only HTTP surface alongside Prometheus
// metrics: a JSON snapshot of the current pool contents. It carries no
// mutating endpoints — rotation and eviction are internal to the pool and
// checker, not remotely triggerable (spec Non-goals: no external rotation
// control surface).
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/romeomihailus/socks5gateway/internal/pool"
)

// Server wraps a *http.Server exposing /metrics and /pool, following the
// teacher's small net/http.Server-wrapper-with-Start/Stop shape.
type Server struct {
	pool   *pool.Pool
	server *http.Server
}

// New builds the combined metrics+pool-inspection server bound to addr.
func New(addr string, p *pool.Pool) *Server {
	s := &Server{pool: p}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/pool", s.handlePool)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop shuts down the server.
func (s *Server) Stop() error {
	return s.server.Close()
}

// handlePool returns the current pool snapshot as JSON.
//
//	GET /pool
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pool.Snapshot()); err != nil {
		log.Printf("[api] encode pool snapshot: %v", err)
	}
}
