// Package hub is the registry of open duplex sessions and the fan-out path
// for server messages. It knows nothing about websockets: sessions are an
// interface installed by the connection supervisor, which keeps the router
// and hub testable without a network.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/anupamxy/kanban-board/internal/protocol"
)

// Session is one open duplex connection. Send must be safe for concurrent
// use; errors mean the session is no longer usable and the frame is dropped.
type Session interface {
	Send(data []byte) error
}

// Hub maps clientIds to their open sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session
	log      *slog.Logger
}

// New creates an empty hub.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{sessions: make(map[string]Session), log: log}
}

// Register adds or replaces the session for clientID.
func (h *Hub) Register(clientID string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[clientID] = s
}

// Unregister removes the session for clientID, if present.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, clientID)
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SendTo delivers one message to a single client. Unknown clientIds and
// failed sends are silently dropped; the close path removes dead entries.
func (h *Hub) SendTo(clientID string, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode message", "type", msg.Type, "err", err)
		return
	}
	h.mu.RLock()
	s, ok := h.sessions[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.Send(data); err != nil {
		h.log.Debug("send failed", "client", clientID, "type", msg.Type, "err", err)
	}
}

// Broadcast delivers one message to every client except skipClientID. The
// message is encoded once; a failed send to one recipient never interrupts
// the fan-out to the rest.
func (h *Hub) Broadcast(msg protocol.ServerMessage, skipClientID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode message", "type", msg.Type, "err", err)
		return
	}

	h.mu.RLock()
	targets := make(map[string]Session, len(h.sessions))
	for id, s := range h.sessions {
		if id == skipClientID {
			continue
		}
		targets[id] = s
	}
	h.mu.RUnlock()

	for id, s := range targets {
		if err := s.Send(data); err != nil {
			h.log.Debug("broadcast send failed", "client", id, "type", msg.Type, "err", err)
		}
	}
}

// BroadcastAll delivers one message to every client.
func (h *Hub) BroadcastAll(msg protocol.ServerMessage) {
	h.Broadcast(msg, "")
}
