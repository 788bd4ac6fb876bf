// Package api serves the read-only HTTP query surface over the store: the
// batcher directory, per-address stats, and per-address transaction
// history, alongside the process's health and metrics endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardano-dex/batcher-monitor/store"
)

// Server wraps the store handle RegisterRoutes' handlers close over.
type Server struct {
	store *store.Store
}

// New returns a Server backed by s.
func New(s *store.Store) *Server {
	return &Server{store: s}
}

// RegisterRoutes wires every route onto mux, including /metrics and
// /healthz so a single HTTP listener serves the whole read surface.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /batchers", s.handleBatchers)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /all-stats", s.handleAllStats)
	mux.HandleFunc("GET /transactions", s.handleTransactions)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleBatchers(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.store.BatcherAddresses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"batchers": addrs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, errMissingAddress)
		return
	}
	all, err := s.store.AllStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, st := range all {
		for _, a := range st.Addresses {
			if a == address {
				writeJSON(w, st)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, errUnknownAddress)
}

func (s *Server) handleAllStats(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.AllStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"batchers": all})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, errMissingAddress)
		return
	}
	txns, err := s.store.TransactionsByAddress(address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{"transactions": txns})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	http.Error(w, err.Error(), status)
}

var (
	errMissingAddress = httpError("address query parameter required")
	errUnknownAddress = httpError("no batcher known for address")
)

type httpError string

func (e httpError) Error() string { return string(e) }
