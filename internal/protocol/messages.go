// Package protocol defines the duplex message schema shared by the websocket
// supervisor and the router. Frames are JSON objects {"type": ..., "payload":
// ...}; the type string discriminates the payload. Unknown discriminators are
// rejected at the boundary, not deep in dispatch.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/anupamxy/kanban-board/internal/models"
)

// Client → server message types.
const (
	MsgSyncRequest    = "SYNC_REQUEST"
	MsgCreateTask     = "CREATE_TASK"
	MsgUpdateTask     = "UPDATE_TASK"
	MsgMoveTask       = "MOVE_TASK"
	MsgDeleteTask     = "DELETE_TASK"
	MsgPresenceUpdate = "PRESENCE_UPDATE"
	MsgReplayQueue    = "REPLAY_QUEUE"
)

// Server → client message types.
const (
	MsgInitialState     = "INITIAL_STATE"
	MsgTaskCreated      = "TASK_CREATED"
	MsgTaskUpdated      = "TASK_UPDATED"
	MsgTaskMoved        = "TASK_MOVED"
	MsgTaskDeleted      = "TASK_DELETED"
	MsgConflictResolved = "CONFLICT_RESOLVED"
	MsgRebalanced       = "REBALANCED"
	MsgError            = "ERROR"
	// PRESENCE_UPDATE is both a client and a server type.
)

// Error codes carried by ERROR messages.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// clientTypes enumerates the valid inbound discriminators.
var clientTypes = map[string]bool{
	MsgSyncRequest:    true,
	MsgCreateTask:     true,
	MsgUpdateTask:     true,
	MsgMoveTask:       true,
	MsgDeleteTask:     true,
	MsgPresenceUpdate: true,
	MsgReplayQueue:    true,
}

// KnownClientType reports whether t is a recognized inbound message type.
func KnownClientType(t string) bool {
	return clientTypes[t]
}

// ClientMessage is an inbound frame with its payload left raw until the
// dispatcher knows which shape to decode.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeClientMessage parses an inbound frame. A JSON failure and an unknown
// discriminator are distinct errors so the router can answer with the right
// error code.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%s: %w", CodeInvalidJSON, err)
	}
	return msg, nil
}

// SyncRequestPayload requests a fresh snapshot.
type SyncRequestPayload struct {
	ClientID string `json:"clientId"`
}

// CreateTaskPayload creates a task; TempID is echoed back so the sender can
// reconcile its optimistic row.
type CreateTaskPayload struct {
	ClientID    string          `json:"clientId"`
	TempID      string          `json:"tempId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ColumnID    models.ColumnID `json:"columnId"`
	Position    float64         `json:"position"`
}

// UpdateChanges is the partial change set of an UPDATE_TASK. Nil pointer =
// field not in the change set.
type UpdateChanges struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateTaskPayload edits task text fields against an observed base version.
type UpdateTaskPayload struct {
	ClientID    string        `json:"clientId"`
	TaskID      string        `json:"taskId"`
	BaseVersion int64         `json:"baseVersion"`
	Changes     UpdateChanges `json:"changes"`
}

// MoveTaskPayload moves a task to a column and fractional position.
type MoveTaskPayload struct {
	ClientID    string          `json:"clientId"`
	TaskID      string          `json:"taskId"`
	BaseVersion int64           `json:"baseVersion"`
	ColumnID    models.ColumnID `json:"columnId"`
	Position    float64         `json:"position"`
}

// DeleteTaskPayload deletes a task. BaseVersion is carried but not enforced.
type DeleteTaskPayload struct {
	ClientID    string `json:"clientId"`
	TaskID      string `json:"taskId"`
	BaseVersion int64  `json:"baseVersion"`
}

// PresenceUpdatePayload patches the sender's presence entry.
type PresenceUpdatePayload struct {
	ClientID    string  `json:"clientId"`
	Username    string  `json:"username"`
	ViewingTask *string `json:"viewingTask"`
	EditingTask *string `json:"editingTask"`
}

// QueuedOperation is one offline mutation inside a REPLAY_QUEUE.
type QueuedOperation struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt int64           `json:"enqueuedAt"`
}

// ReplayQueuePayload replays mutations accumulated while offline, in enqueue
// order, through the normal dispatch and conflict pipeline.
type ReplayQueuePayload struct {
	ClientID   string            `json:"clientId"`
	Operations []QueuedOperation `json:"operations"`
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// InitialStatePayload is the snapshot sent to a newly connected client.
type InitialStatePayload struct {
	Tasks    []models.Task         `json:"tasks"`
	Presence []models.PresenceUser `json:"presence"`
}

// TaskCreatedPayload broadcasts a created task together with the creator's
// temp id.
type TaskCreatedPayload struct {
	Task   *models.Task `json:"task"`
	TempID string       `json:"tempId"`
}

// TaskDeletedPayload broadcasts a deletion.
type TaskDeletedPayload struct {
	TaskID string `json:"taskId"`
}

// ConflictResolvedPayload tells the losing (or partially losing) writer how
// its mutation was reconciled.
type ConflictResolvedPayload struct {
	TaskID         string       `json:"taskId"`
	Resolution     string       `json:"resolution"`
	Task           *models.Task `json:"task"`
	MergedFields   []string     `json:"mergedFields"`
	RejectedFields []string     `json:"rejectedFields"`
	Reason         string       `json:"reason"`
}

// RebalancedPayload broadcasts a column's atomically re-laid-out tasks.
type RebalancedPayload struct {
	ColumnID models.ColumnID `json:"columnId"`
	Tasks    []models.Task   `json:"tasks"`
}

// ErrorPayload is sent to the originating session only; the session stays
// open.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TaskID  string `json:"taskId,omitempty"`
}

// Error builds an ERROR server message.
func Error(code, message, taskID string) ServerMessage {
	return ServerMessage{Type: MsgError, Payload: ErrorPayload{Code: code, Message: message, TaskID: taskID}}
}
