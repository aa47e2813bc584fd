package jobmanager

import (
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/models"
)

// SocketObserver pushes job events to one WebSocket session. It is
// single-shot: completion or failure unbinds it from the registry.
type SocketObserver struct {
	sessionID string
	emitter   interfaces.SocketEmitter
}

var _ interfaces.Observer = (*SocketObserver)(nil)

func newSocketObserver(sessionID string, emitter interfaces.SocketEmitter) *SocketObserver {
	return &SocketObserver{sessionID: sessionID, emitter: emitter}
}

// SessionID returns the session this observer pushes to.
func (o *SocketObserver) SessionID() string {
	return o.sessionID
}

// UpdateStarted signals the waiting-to-processing transition.
func (o *SocketObserver) UpdateStarted() {
	o.emitter.Emit(o.sessionID, models.EventStartedProcessing, nil)
}

// UpdatePercentage pushes a progress event.
func (o *SocketObserver) UpdatePercentage(percent int) {
	o.emitter.Emit(o.sessionID, models.EventProgress, map[string]any{"percent": percent})
}

// UpdateComplete pushes the final results.
func (o *SocketObserver) UpdateComplete(jobType string, results any) {
	o.emitter.Emit(o.sessionID, models.EventComplete, map[string]any{
		"type":    jobType,
		"results": results,
	})
}

// UpdateFailed pushes the terminal failure message.
func (o *SocketObserver) UpdateFailed(errMsg string) {
	o.emitter.Emit(o.sessionID, models.EventFailed, map[string]any{"error": errMsg})
}
