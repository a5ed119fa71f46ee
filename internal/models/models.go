package models

import (
	"time"
)

// ColumnID represents a board column
type ColumnID string

const (
	ColumnTodo       ColumnID = "todo"
	ColumnInProgress ColumnID = "inprogress"
	ColumnDone       ColumnID = "done"
)

// ValidColumn reports whether c is one of the three board columns.
func ValidColumn(c ColumnID) bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnDone:
		return true
	}
	return false
}

// Limits on user-supplied text fields.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

// DefaultTitle is used when a task is created without a title.
const DefaultTitle = "New Task"

// Task is the persisted board entity. Each logical field carries a version
// stamp recording the global version that last wrote it; stamps never exceed
// Version.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ColumnID    ColumnID `json:"columnId"`
	Position    float64  `json:"position"`

	Version            int64 `json:"version"`
	TitleVersion       int64 `json:"titleVersion"`
	DescriptionVersion int64 `json:"descriptionVersion"`
	ColumnVersion      int64 `json:"columnVersion"`
	PositionVersion    int64 `json:"positionVersion"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceUser is the ephemeral per-session activity state. Never persisted;
// its lifetime is bounded by the websocket session.
type PresenceUser struct {
	ClientID    string    `json:"clientId"`
	Username    string    `json:"username"`
	Color       string    `json:"color"`
	ViewingTask *string   `json:"viewingTask"`
	EditingTask *string   `json:"editingTask"`
	ConnectedAt time.Time `json:"connectedAt"`
}
