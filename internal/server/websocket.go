package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/metrics"
	"github.com/crab-bench/crab-server/internal/models"
	"github.com/crab-bench/crab-server/internal/services/jobmanager"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionHub tracks connected WebSocket sessions and delivers job events
// to them. Each connection is assigned a session id which the server sends
// back in a "connected" frame; the client echoes it as X-Socket-Id on HTTP
// requests so submissions and status polls can bind an observer to the
// session.
type SessionHub struct {
	clients    map[string]*sessionClient
	register   chan *sessionClient
	unregister chan *sessionClient
	done       chan struct{}
	mu         sync.RWMutex
	manager    *jobmanager.Manager
	logger     *common.Logger
}

// sessionClient is one connected WebSocket session.
type sessionClient struct {
	hub       *SessionHub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

var _ interfaces.SocketEmitter = (*SessionHub)(nil)

// NewSessionHub creates a hub bound to the job manager. Disconnecting
// sessions are detached from whatever job they observe.
func NewSessionHub(logger *common.Logger, manager *jobmanager.Manager) *SessionHub {
	return &SessionHub{
		clients:    make(map[string]*sessionClient),
		register:   make(chan *sessionClient),
		unregister: make(chan *sessionClient),
		done:       make(chan struct{}),
		manager:    manager,
		logger:     logger,
	}
}

// Run starts the hub's main event loop. Should be called as a goroutine.
func (h *SessionHub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSSessions(n)
			h.logger.Debug().Str("session_id", client.sessionID).Int("sessions", n).Msg("WebSocket session connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client.sessionID] == client {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.manager.DetachSession(client.sessionID)
			metrics.SetWSSessions(n)
			h.logger.Debug().Str("session_id", client.sessionID).Int("sessions", n).Msg("WebSocket session disconnected")
		}
	}
}

// Stop signals the hub's event loop to exit.
func (h *SessionHub) Stop() {
	select {
	case <-h.done:
		// Already stopped
	default:
		close(h.done)
	}
}

// Emit sends one event frame to a single session. Frames for unknown or
// slow sessions are dropped; the status endpoint stays authoritative.
func (h *SessionHub) Emit(sessionID, event string, data any) {
	payload, ok := h.encodeFrame(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	client, exists := h.clients[sessionID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	select {
	case client.send <- payload:
	default:
		h.logger.Warn().Str("session_id", sessionID).Str("event", event).Msg("Session send buffer full, dropping event")
	}
}

// Connected reports whether the session currently has an open socket.
func (h *SessionHub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// SessionCount returns the number of connected sessions.
func (h *SessionHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *SessionHub) encodeFrame(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(models.SocketMessage{Event: event, Data: data})
	if err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("Failed to marshal socket event")
		return nil, false
	}
	return payload, true
}

// ServeWS upgrades an HTTP connection to WebSocket, registers the session,
// and sends the assigned session id as the first frame.
func (h *SessionHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &sessionClient{
		hub:       h,
		conn:      conn,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, 256),
	}

	// Queued before the pumps start, so the client always sees its
	// session id first.
	if frame, ok := h.encodeFrame(models.EventConnected, map[string]any{"sid": client.sessionID}); ok {
		client.send <- frame
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// handleQueuePosition answers a get_queue_position request with the job's
// status, plus its 1-based queue position while it is still waiting.
func (h *SessionHub) handleQueuePosition(c *sessionClient, data json.RawMessage) {
	var req models.QueuePositionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("Ignoring malformed queue position request")
		return
	}

	reply := models.QueuePositionReply{Status: "unknown"}
	if subject, ok := h.manager.JobByID(req.ID); ok {
		snap := subject.Snapshot()
		reply.Status = snap.Status
		if snap.Status == models.JobStatusWaiting {
			if pos := h.manager.Position(req.ID); pos > 0 {
				reply.Position = &pos
			}
		}
	}

	h.Emit(c.sessionID, models.EventQueuePosition, reply)
}

// writePump sends messages from the send channel to the WebSocket connection.
func (c *sessionClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the connection drops. The only
// request the protocol defines is get_queue_position.
func (c *sessionClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req models.SocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("Ignoring malformed socket frame")
			continue
		}

		switch req.Event {
		case models.EventGetQueuePosition:
			c.hub.handleQueuePosition(c, req.Data)
		default:
			c.hub.logger.Debug().Str("event", req.Event).Str("session_id", c.sessionID).Msg("Ignoring unknown socket event")
		}
	}
}
