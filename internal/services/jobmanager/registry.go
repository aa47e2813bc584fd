package jobmanager

import (
	"errors"

	"github.com/crab-bench/crab-server/internal/models"
)

// ErrAlreadyListening is returned when a session tries to subscribe to a
// job it is already observing.
var ErrAlreadyListening = errors.New("already listening to this job")

// AttachSession subscribes a session to a job's events. A session holds
// at most one observer: subscribing to a different job first pushes
// changing-subject and unbinds the old observer. Subscribing again to
// the same job is rejected.
func (m *Manager) AttachSession(sessionID string, subject *Subject) error {
	m.mu.Lock()
	if prev, ok := m.bySession[sessionID]; ok {
		if m.byObserver[prev] == subject {
			m.mu.Unlock()
			return ErrAlreadyListening
		}
		m.detachLocked(sessionID)
		m.mu.Unlock()
		if m.emitter != nil {
			m.emitter.Emit(sessionID, models.EventChangingSubject, nil)
		}
		m.mu.Lock()
	}

	// The job may have finished between the status check and this call.
	// A terminal job has nothing left to push, so don't bind to it.
	if subject.terminalLocked() {
		m.mu.Unlock()
		return nil
	}

	obs := newSocketObserver(sessionID, m.emitter)
	m.bySession[sessionID] = obs
	m.byObserver[obs] = subject
	subject.observers[obs] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug().
		Str("session_id", sessionID).
		Str("job_id", subject.id).
		Msg("Session attached to job")
	return nil
}

// DetachSession unbinds whatever observer the session holds. Called on
// client disconnect; job progress is unaffected.
func (m *Manager) DetachSession(sessionID string) {
	m.mu.Lock()
	m.detachLocked(sessionID)
	m.mu.Unlock()
}

// detachLocked drops the session's observer from both registry relations
// and from its job's observer set. Caller holds the manager lock.
func (m *Manager) detachLocked(sessionID string) {
	obs, ok := m.bySession[sessionID]
	if !ok {
		return
	}
	if subject := m.byObserver[obs]; subject != nil {
		delete(subject.observers, obs)
	}
	delete(m.byObserver, obs)
	delete(m.bySession, sessionID)
}
