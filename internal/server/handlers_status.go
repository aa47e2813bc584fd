package server

import (
	"errors"
	"net/http"

	"github.com/crab-bench/crab-server/internal/models"
	"github.com/crab-bench/crab-server/internal/services/jobmanager"
)

// handleAnswerStatus handles GET /answers/status/{id} — report the job's
// current state and optionally subscribe the caller's WebSocket session
// to its remaining events.
func (s *Server) handleAnswerStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathParam(r, "/answers/status/", "")
	subject, ok := s.app.JobManager.JobByID(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "No submission with the given id")
		return
	}

	snap := subject.Snapshot()

	switch snap.Status {
	case models.JobStatusComplete:
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":  snap.Status,
			"type":    snap.Type,
			"results": snap.Results,
		})

	case models.JobStatusFailed:
		WriteJSON(w, http.StatusOK, map[string]any{
			"status": snap.Status,
			"error":  snap.Error,
		})

	case models.JobStatusProcessing:
		if !s.attachSession(w, r, subject) {
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":  snap.Status,
			"percent": snap.Percent,
		})

	case models.JobStatusWaiting:
		if !s.attachSession(w, r, subject) {
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":         snap.Status,
			"queue_position": s.app.JobManager.Position(id),
		})

	default:
		WriteJSON(w, http.StatusOK, map[string]any{"status": snap.Status})
	}
}

// attachSession binds the caller's WebSocket session to the job when the
// X-Socket-Id header names a connected session. Returns false after
// writing the response for a session that already observes this job.
func (s *Server) attachSession(w http.ResponseWriter, r *http.Request, subject *jobmanager.Subject) bool {
	sid := r.Header.Get("X-Socket-Id")
	if sid == "" || !s.hub.Connected(sid) {
		return true
	}

	if err := s.app.JobManager.AttachSession(sid, subject); err != nil {
		if errors.Is(err, jobmanager.ErrAlreadyListening) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return false
		}
		s.logger.Warn().Err(err).Str("session_id", sid).Msg("Failed to attach session to job")
	}
	return true
}
