package models

import "encoding/json"

// Job type constants
const (
	JobTypeComment    = "comment"
	JobTypeRefinement = "refinement"
)

// ValidJobType reports whether t names a known submission type.
func ValidJobType(t string) bool {
	return t == JobTypeComment || t == JobTypeRefinement
}

// Job status constants. Transitions run forward only:
// created -> waiting -> processing -> complete or failed.
const (
	JobStatusCreated    = "created"
	JobStatusWaiting    = "waiting"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// WebSocket event names pushed to subscribed sessions
const (
	EventConnected         = "connected"
	EventSuccessfulUpload  = "successful-upload"
	EventStartedProcessing = "started-processing"
	EventProgress          = "progress"
	EventComplete          = "complete"
	EventFailed            = "failed"
	EventChangingSubject   = "changing-subject"
	EventQueuePosition     = "queue_position"
)

// EventGetQueuePosition is the one inbound WebSocket request clients send.
const EventGetQueuePosition = "get_queue_position"

// SocketMessage is the outbound wire envelope for WebSocket events.
type SocketMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SocketRequest is the inbound wire envelope. Data stays raw until the
// event name selects a shape.
type SocketRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// QueuePositionRequest asks for the wait-queue position of a job.
type QueuePositionRequest struct {
	ID string `json:"id"`
}

// QueuePositionReply answers a get_queue_position request. Position is
// present only while the job is waiting (1-based from the queue head).
type QueuePositionReply struct {
	Status   string `json:"status"`
	Position *int   `json:"position,omitempty"`
}
