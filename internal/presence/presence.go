// Package presence tracks per-session activity state. Entries live only as
// long as the websocket session; nothing here is persisted or replicated.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/anupamxy/kanban-board/internal/models"
)

// palette is assigned round-robin at connection time. With more than eight
// concurrent users colors repeat; no uniqueness is promised.
var palette = []string{
	"#3B82F6", // blue
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#F97316", // orange
}

// Update is a partial patch for an existing entry. Username is applied only
// when non-empty; the task pointers are applied as sent (nil clears).
type Update struct {
	Username    string
	ViewingTask *string
	EditingTask *string
}

// Registry is the in-memory presence map keyed by clientId.
type Registry struct {
	mu       sync.Mutex
	users    map[string]*models.PresenceUser
	colorIdx int
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*models.PresenceUser)}
}

// AddUser registers a new client and assigns the next palette color.
// Re-adding an existing clientId replaces the entry.
func (r *Registry) AddUser(clientID, username string) models.PresenceUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := &models.PresenceUser{
		ClientID:    clientID,
		Username:    username,
		Color:       palette[r.colorIdx%len(palette)],
		ConnectedAt: time.Now().UTC(),
	}
	r.colorIdx++
	r.users[clientID] = u
	return *u
}

// UpdateUser merges a patch into an existing entry. Unknown clientIds return
// nil without creating an entry.
func (r *Registry) UpdateUser(clientID string, patch Update) *models.PresenceUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[clientID]
	if !ok {
		return nil
	}
	if patch.Username != "" {
		u.Username = patch.Username
	}
	u.ViewingTask = patch.ViewingTask
	u.EditingTask = patch.EditingTask

	snapshot := *u
	return &snapshot
}

// RemoveUser deletes the entry for clientID, if present.
func (r *Registry) RemoveUser(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, clientID)
}

// GetAllUsers returns a stable snapshot ordered by connection time (clientId
// breaks ties) for broadcasting.
func (r *Registry) GetAllUsers() []models.PresenceUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PresenceUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}
