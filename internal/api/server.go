// Package api serves the read-only status surface over HTTP.
//
// Every endpoint is a GET against the ledger; nothing here mutates state,
// so the server can run beside the single-writer observation loop without
// coordination beyond SQLite's own read snapshotting.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
)

// LotInfo is the operator-visible configuration snapshot served by
// /api/config. Credentials never appear here.
type LotInfo struct {
	LotName      string  `json:"lot_name"`
	LineY        float64 `json:"line_y"`
	Margin       float64 `json:"margin"`
	PlateGrammar string  `json:"plate_grammar"`
	AlertsByMail bool    `json:"alerts_by_mail"`
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger *ledger.Ledger
	limits func() engine.Limits
	info   LotInfo
	logger *slog.Logger
	http   *http.Server
}

// New builds a Server bound to addr. limits is read per request so that
// hot-reloaded capacity and rate take effect immediately.
func New(addr string, l *ledger.Ledger, limits func() engine.Limits, info LotInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{ledger: l, limits: limits, info: info, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/parking/status", s.handleStatus)
	mux.HandleFunc("GET /api/parking/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/parking/export", s.handleExport)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status api listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status api: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	lim := s.limits()
	s.writeJSON(w, struct {
		LotInfo
		MaxCapacity int     `json:"max_capacity"`
		HourlyRate  float64 `json:"hourly_rate"`
	}{LotInfo: s.info, MaxCapacity: lim.MaxCapacity, HourlyRate: lim.HourlyRate})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	lim := s.limits()
	st, err := s.ledger.Status(r.Context(), lim.MaxCapacity, lim.HourlyRate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, st)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.ledger.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, sessions)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="parking_sessions.csv"`)
	if err := s.ledger.ExportCSV(r.Context(), w); err != nil {
		s.logger.Error("export failed", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("api request failed", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
