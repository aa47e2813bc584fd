package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/crab-bench/crab-server/internal/app"
	"github.com/crab-bench/crab-server/internal/common"
)

// Server wraps the HTTP server, the WebSocket session hub, and the
// application reference.
type Server struct {
	app    *app.App
	hub    *SessionHub
	server *http.Server
	logger *common.Logger
}

// NewServer creates the HTTP + WebSocket API server. The session hub's
// event loop starts immediately, so the handler is fully usable in tests
// without Start; Shutdown stops the loop again.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger,
	}

	s.hub = NewSessionHub(a.Logger, a.JobManager)
	a.JobManager.SetEmitter(s.hub)
	go s.hub.Run()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, a.Logger)

	host := a.Config.Server.Host
	port := a.Config.Server.Port

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the WebSocket session hub.
func (s *Server) Hub() *SessionHub {
	return s.hub
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting evaluation server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and stops the session hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.hub.Stop()
	return err
}
