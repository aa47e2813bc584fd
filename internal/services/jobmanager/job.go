package jobmanager

import (
	"context"
	"encoding/json"

	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// Task is the evaluator bound to a job. It reports progress through the
// subject's notify methods and returns an error only when the whole run
// is lost; per-entry failures belong in the results instead.
type Task func(ctx context.Context, job *Subject) error

// Subject is one submission job. Its id doubles as the reserved result
// filename so a restart can rebind completed jobs. All mutable state is
// guarded by the owning manager's lock.
type Subject struct {
	m *Manager

	id      string
	jobType string
	task    Task

	status    string
	percent   int
	results   any
	errMsg    string
	observers map[interfaces.Observer]struct{}
}

// Snapshot is a point-in-time copy of a job's externally visible state.
type Snapshot struct {
	ID      string
	Type    string
	Status  string
	Percent int
	Results any
	Error   string
}

// ID returns the job id.
func (s *Subject) ID() string {
	return s.id
}

// Type returns the job type.
func (s *Subject) Type() string {
	return s.jobType
}

// Snapshot copies the job state under the manager lock.
func (s *Subject) Snapshot() Snapshot {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return Snapshot{
		ID:      s.id,
		Type:    s.jobType,
		Status:  s.status,
		Percent: s.percent,
		Results: s.results,
		Error:   s.errMsg,
	}
}

// NotifyPercentage records evaluation progress and fans it out to the
// job's observers.
func (s *Subject) NotifyPercentage(percent int) {
	s.m.mu.Lock()
	s.percent = percent
	observers := s.observersLocked()
	s.m.mu.Unlock()

	for _, obs := range observers {
		obs.UpdatePercentage(percent)
	}
}

// NotifyComplete moves the job to its terminal complete state, fans the
// results out to observers, drains them, and persists the results over
// the reserved file. Calls after the first are no-ops.
func (s *Subject) NotifyComplete(results any) {
	s.m.mu.Lock()
	if s.terminalLocked() {
		s.m.mu.Unlock()
		return
	}
	s.status = models.JobStatusComplete
	s.results = results
	observers := s.drainObserversLocked()
	s.m.mu.Unlock()

	for _, obs := range observers {
		obs.UpdateComplete(s.jobType, results)
	}

	data, err := json.Marshal(results)
	if err != nil {
		s.m.logger.Error().Err(err).Str("job_id", s.id).Msg("Failed to marshal job results")
		return
	}
	if err := s.m.store.Finalize(s.id, data); err != nil {
		s.m.logger.Error().Err(err).Str("job_id", s.id).Msg("Failed to persist job results")
	}
}

// NotifyFailed moves the job to its terminal failed state, tells the
// observers, and releases the reserved result file. Calls after a
// terminal transition are no-ops.
func (s *Subject) NotifyFailed(errMsg string) {
	s.m.mu.Lock()
	if s.terminalLocked() {
		s.m.mu.Unlock()
		return
	}
	s.status = models.JobStatusFailed
	s.errMsg = errMsg
	observers := s.drainObserversLocked()
	s.m.mu.Unlock()

	for _, obs := range observers {
		obs.UpdateFailed(errMsg)
	}

	if err := s.m.store.Remove(s.id); err != nil {
		s.m.logger.Warn().Err(err).Str("job_id", s.id).Msg("Failed to remove reserved result file")
	}
}

// terminalLocked reports whether the job already reached a final state.
// Caller holds the manager lock.
func (s *Subject) terminalLocked() bool {
	return s.status == models.JobStatusComplete || s.status == models.JobStatusFailed
}

// observersLocked snapshots the observer set. Caller holds the manager
// lock; fan-out happens after release.
func (s *Subject) observersLocked() []interfaces.Observer {
	if len(s.observers) == 0 {
		return nil
	}
	observers := make([]interfaces.Observer, 0, len(s.observers))
	for obs := range s.observers {
		observers = append(observers, obs)
	}
	return observers
}

// drainObserversLocked empties the observer set and unbinds every
// observer from the registry. Caller holds the manager lock.
func (s *Subject) drainObserversLocked() []interfaces.Observer {
	observers := s.observersLocked()
	for obs := range s.observers {
		delete(s.m.byObserver, obs)
		delete(s.m.bySession, obs.SessionID())
	}
	s.observers = make(map[interfaces.Observer]struct{})
	return observers
}
