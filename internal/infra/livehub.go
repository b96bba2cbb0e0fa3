package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Live message types pushed to connected clients.
const (
	LiveEventConnected      = "session.connected"
	LiveEventSessionRevoked = "session.revoked"
)

// LiveHub tracks live client connections (SSE streams) per session token.
// It is the session registry's Terminator.
type LiveHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*LiveConn // session token -> connID -> conn
	logger *slog.Logger
}

// LiveConn is one connected client stream. Send is closed when the hub
// drops the connection.
type LiveConn struct {
	ID           string
	SessionToken string
	PrincipalID  string
	Send         chan []byte
}

// LiveMessage is the frame written to clients.
type LiveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func NewLiveHub(logger *slog.Logger) *LiveHub {
	return &LiveHub{
		rooms:  make(map[string]map[string]*LiveConn),
		logger: logger,
	}
}

// Subscribe registers a new connection for the session token.
func (h *LiveHub) Subscribe(token, principalID string, buffer int) *LiveConn {
	if buffer <= 0 {
		buffer = 8
	}
	conn := &LiveConn{
		ID:           uuid.NewString(),
		SessionToken: token,
		PrincipalID:  principalID,
		Send:         make(chan []byte, buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[token] == nil {
		h.rooms[token] = make(map[string]*LiveConn)
	}
	h.rooms[token][conn.ID] = conn
	return conn
}

// Unsubscribe removes the connection and closes its channel if the hub
// still owns it.
func (h *LiveHub) Unsubscribe(conn *LiveConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[conn.SessionToken]
	if !ok {
		return
	}
	if _, ok := conns[conn.ID]; !ok {
		return
	}
	delete(conns, conn.ID)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.rooms, conn.SessionToken)
	}
}

// Publish sends a message to every connection of the session token.
func (h *LiveHub) Publish(token, msgType string, data interface{}) {
	payload, err := json.Marshal(LiveMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("live marshal error", "error", err, "type", msgType)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.rooms[token] {
		h.offer(conn, payload)
	}
}

// Terminate pushes a session.revoked frame to the token's connections and
// closes them. A token with no live connections is a no-op.
func (h *LiveHub) Terminate(_ context.Context, token string) error {
	payload, err := json.Marshal(LiveMessage{Type: LiveEventSessionRevoked})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[token]
	if !ok {
		return nil
	}
	for _, conn := range conns {
		h.offer(conn, payload)
		close(conn.Send)
	}
	delete(h.rooms, token)
	h.logger.Info("live session terminated", "connections", len(conns))
	return nil
}

func (h *LiveHub) offer(conn *LiveConn, payload []byte) {
	select {
	case conn.Send <- payload:
	default:
		h.logger.Warn("live send buffer full", "conn_id", conn.ID)
	}
}

// ConnectionCount returns the total number of live connections.
func (h *LiveHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

// Shutdown closes all connections.
func (h *LiveHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for token, conns := range h.rooms {
		for _, conn := range conns {
			close(conn.Send)
		}
		delete(h.rooms, token)
	}
}
