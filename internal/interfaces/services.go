// Package interfaces defines service contracts for the CRAB server
package interfaces

// SocketEmitter pushes events to a single client session. Implementations
// must be non-blocking; delivery is best-effort.
type SocketEmitter interface {
	// Emit sends an event to one session, dropping it if the session is
	// gone or its buffer is full.
	Emit(sessionID, event string, data any)

	// Connected reports whether the session currently has a live socket.
	Connected(sessionID string) bool
}

// Observer is a push sink bound to one evaluation job. Update calls fan out
// from the worker running the job and must return quickly.
type Observer interface {
	// SessionID returns the client session this observer delivers to.
	SessionID() string

	// UpdateStarted signals the queue-to-processing transition.
	UpdateStarted()

	// UpdatePercentage delivers a progress value in [0, 100].
	UpdatePercentage(percent int)

	// UpdateComplete delivers the terminal results. Single-shot: the
	// observer detaches itself afterwards.
	UpdateComplete(jobType string, results any)

	// UpdateFailed delivers a terminal failure. Single-shot like
	// UpdateComplete.
	UpdateFailed(errMsg string)
}
