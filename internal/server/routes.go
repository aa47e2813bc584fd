package server

import (
	"net/http"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/metrics"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Static frontend
	mux.Handle("/", http.FileServer(http.Dir(s.app.Config.Server.PublicDir)))

	// System
	mux.HandleFunc("/api/hello", s.handleHello)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket sessions
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Submissions
	mux.HandleFunc("/answers/submit/comment", s.handleSubmitComment)
	mux.HandleFunc("/answers/submit/refinement", s.handleSubmitRefinement)
	mux.HandleFunc("/answers/status/", s.handleAnswerStatus)

	// Dataset downloads
	mux.HandleFunc("/datasets/download/", s.handleDatasetDownload)
}

// --- System handlers ---

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Hello from the backend!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
