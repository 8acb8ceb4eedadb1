// Package dashboard exposes a read-only JSON view of the portfolio over
// HTTP. It never mutates the ledger.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"paperledger/internal/ledger"
)

type Server struct {
	router *chi.Mux
	server *http.Server
	ledger *ledger.Ledger
	logger *logrus.Logger
	port   int
}

type Config struct {
	Port int
}

// NewServer builds the HTTP server over the given ledger.
func NewServer(cfg Config, lgr *ledger.Ledger, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router: chi.NewRouter(),
		ledger: lgr,
		logger: logger,
		port:   cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/portfolio", s.handlePortfolio)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/positions/{id}", s.handlePosition)
	s.router.Get("/api/positions/{id}/decisions", s.handleDecisions)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	snap := s.ledger.Snapshot()
	// The portfolio view summarizes; position detail lives under /api/positions.
	snap.Positions = nil
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()

	status := r.URL.Query().Get("status")
	if status == "" {
		s.writeJSON(w, http.StatusOK, snap.Positions)
		return
	}

	filtered := snap.Positions[:0:0]
	for _, p := range snap.Positions {
		if string(p.Status) == status {
			filtered = append(filtered, p)
		}
	}
	s.writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.ledger.GetPosition(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "position not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.ledger.GetPosition(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "position not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, p.Decisions)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
