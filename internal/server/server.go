// Package server exposes the experimentation engine over HTTP for the rest
// of the platform: assignment, tracking, and results.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/splitlab/splitlab/internal/engine"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/results"
	"github.com/splitlab/splitlab/internal/store"
)

type Server struct {
	store       *store.SQLiteStore
	experiments *experiment.Manager
	engine      *engine.Engine
	results     *results.Engine
	port        int
	router      *http.ServeMux
	log         zerolog.Logger
	startTime   time.Time
}

func New(s *store.SQLiteStore, m *experiment.Manager, e *engine.Engine, r *results.Engine, port int, log zerolog.Logger) *Server {
	srv := &Server{
		store:       s,
		experiments: m,
		engine:      e,
		results:     r,
		port:        port,
		router:      http.NewServeMux(),
		log:         log.With().Str("component", "server").Logger(),
		startTime:   time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/assign", s.handleAssign)
	s.router.HandleFunc("/api/track", s.handleTrack)
	s.router.HandleFunc("/api/results", s.handleResults)
	s.router.HandleFunc("/api/experiments", s.handleExperiments)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
