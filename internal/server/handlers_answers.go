package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/crab-bench/crab-server/internal/metrics"
	"github.com/crab-bench/crab-server/internal/models"
	"github.com/crab-bench/crab-server/internal/services/jobmanager"
)

// maxUploadBytes bounds submission uploads. Refinement submissions carry
// whole file contents, so the limit is generous.
const maxUploadBytes = 200 << 20

const statusHelpMsg = "Check the status of your submission at the status_url"

// handleSubmitComment handles POST /answers/submit/comment — upload a
// comment-generation submission and queue its evaluation.
func (s *Server) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, ok := s.readSubmissionFile(w, r)
	if !ok {
		metrics.IncSubmission(models.JobTypeComment, metrics.OutcomeRejected)
		return
	}

	submissions, order, err := models.ParseCommentSubmissions(data)
	if err != nil {
		metrics.IncSubmission(models.JobTypeComment, metrics.OutcomeRejected)
		WriteErrorMessage(w, http.StatusBadRequest, "Invalid JSON format", err.Error())
		return
	}

	task := func(ctx context.Context, job *jobmanager.Subject) error {
		_, err := s.app.CommentEval.Evaluate(ctx, submissions, order, job.NotifyPercentage,
			func(results map[string]models.CommentResult) { job.NotifyComplete(results) })
		return err
	}

	s.acceptSubmission(w, r, models.JobTypeComment, task)
}

// handleSubmitRefinement handles POST /answers/submit/refinement — upload
// a code-refinement submission and queue its evaluation.
func (s *Server) handleSubmitRefinement(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	data, ok := s.readSubmissionFile(w, r)
	if !ok {
		metrics.IncSubmission(models.JobTypeRefinement, metrics.OutcomeRejected)
		return
	}

	submissions, order, err := models.ParseRefinementSubmissions(data)
	if err != nil {
		metrics.IncSubmission(models.JobTypeRefinement, metrics.OutcomeRejected)
		WriteErrorMessage(w, http.StatusBadRequest, "Invalid JSON format", err.Error())
		return
	}

	task := func(ctx context.Context, job *jobmanager.Subject) error {
		_, err := s.app.RefinementEval.Evaluate(ctx, submissions, order, job.NotifyPercentage,
			func(results map[string]models.RefinementResult) { job.NotifyComplete(results) })
		return err
	}

	s.acceptSubmission(w, r, models.JobTypeRefinement, task)
}

// readSubmissionFile pulls the uploaded "file" part out of the multipart
// form. Only filenames with a json extension are accepted.
func (s *Server) readSubmissionFile(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Only JSON files are allowed")
		return nil, false
	}
	defer file.Close()

	parts := strings.Split(header.Filename, ".")
	if parts[len(parts)-1] != "json" {
		WriteError(w, http.StatusBadRequest, "Only JSON files are allowed")
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read uploaded submission")
		WriteError(w, http.StatusBadRequest, "Only JSON files are allowed")
		return nil, false
	}
	return data, true
}

// acceptSubmission reserves a result file, registers the evaluation job,
// notifies the uploading session, and queues the work.
func (s *Server) acceptSubmission(w http.ResponseWriter, r *http.Request, jobType string, task jobmanager.Task) {
	id, _, err := s.app.Results.Reserve(jobType)
	if err != nil {
		s.logger.Error().Err(err).Str("job_type", jobType).Msg("Failed to reserve result file")
		WriteError(w, http.StatusInternalServerError, "Failed to reserve submission result")
		return
	}

	subject := s.app.JobManager.NewJob(id, jobType, task)

	if sid := r.Header.Get("X-Socket-Id"); sid != "" && s.hub.Connected(sid) {
		s.hub.Emit(sid, models.EventSuccessfulUpload, nil)
	}

	s.app.JobManager.Submit(subject)
	metrics.IncSubmission(jobType, metrics.OutcomeAccepted)

	WriteJSON(w, http.StatusOK, map[string]string{
		"id":         id,
		"status_url": "/answers/status/" + id,
		"help_msg":   statusHelpMsg,
	})
}
