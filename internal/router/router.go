// Package router dispatches inbound duplex frames to the task service and
// presence registry, translates results into server messages, and routes
// them through the hub. It deliberately does not import the connection
// supervisor: sessions reach it only as clientIds, which keeps every handler
// unit-testable against an in-memory hub.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anupamxy/kanban-board/internal/db"
	"github.com/anupamxy/kanban-board/internal/hub"
	"github.com/anupamxy/kanban-board/internal/models"
	"github.com/anupamxy/kanban-board/internal/presence"
	"github.com/anupamxy/kanban-board/internal/protocol"
)

// Router orchestrates message handling for all sessions.
type Router struct {
	store    *db.DB
	presence *presence.Registry
	hub      *hub.Hub
	log      *slog.Logger
}

// New creates a router over the given collaborators.
func New(store *db.DB, reg *presence.Registry, h *hub.Hub, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{store: store, presence: reg, hub: h, log: log}
}

// HandleMessage processes one inbound frame from clientID. Callers invoke it
// sequentially per session, so a session's messages apply in receive order.
// Failures never tear down the connection: protocol and internal errors are
// answered with an ERROR message to the sender only.
func (r *Router) HandleMessage(ctx context.Context, clientID string, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", "client", clientID, "panic", rec)
			r.hub.SendTo(clientID, protocol.Error(protocol.CodeInternalError, fmt.Sprint(rec), ""))
		}
	}()

	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid message frame", ""))
		return
	}
	r.log.Debug("frame", "client", clientID, "type", msg.Type)
	r.dispatch(ctx, clientID, msg.Type, msg.Payload, false)
}

// dispatch routes one operation. inReplay guards against nested replay
// queues.
func (r *Router) dispatch(ctx context.Context, clientID, msgType string, payload json.RawMessage, inReplay bool) {
	switch msgType {
	case protocol.MsgSyncRequest:
		r.handleSyncRequest(ctx, clientID)
	case protocol.MsgCreateTask:
		r.handleCreateTask(ctx, clientID, payload)
	case protocol.MsgUpdateTask:
		r.handleUpdateTask(ctx, clientID, payload)
	case protocol.MsgMoveTask:
		r.handleMoveTask(ctx, clientID, payload)
	case protocol.MsgDeleteTask:
		r.handleDeleteTask(ctx, clientID, payload)
	case protocol.MsgPresenceUpdate:
		r.handlePresenceUpdate(clientID, payload)
	case protocol.MsgReplayQueue:
		if inReplay {
			r.hub.SendTo(clientID, protocol.Error(protocol.CodeUnknownMessageType, "replay queues cannot be nested", ""))
			return
		}
		r.handleReplayQueue(ctx, clientID, payload)
	default:
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeUnknownMessageType, fmt.Sprintf("unknown message type %q", msgType), ""))
	}
}

// SendInitialState assembles and sends the snapshot for a newly connected or
// resyncing client. Tasks and presence are read without a cross-component
// lock; a racing TASK_CREATED is acceptable because client stores upsert
// idempotently.
func (r *Router) SendInitialState(ctx context.Context, clientID string) error {
	tasks, err := r.store.GetAllTasks(ctx)
	if err != nil {
		return fmt.Errorf("snapshot tasks: %w", err)
	}
	r.hub.SendTo(clientID, protocol.ServerMessage{
		Type: protocol.MsgInitialState,
		Payload: protocol.InitialStatePayload{
			Tasks:    tasks,
			Presence: r.presence.GetAllUsers(),
		},
	})
	return nil
}

// BroadcastPresence fans the current presence list out to every session
// except skipClientID. The supervisor uses it on connect and close.
func (r *Router) BroadcastPresence(skipClientID string) {
	r.hub.Broadcast(protocol.ServerMessage{
		Type:    protocol.MsgPresenceUpdate,
		Payload: r.presence.GetAllUsers(),
	}, skipClientID)
}

func (r *Router) handleSyncRequest(ctx context.Context, clientID string) {
	if err := r.SendInitialState(ctx, clientID); err != nil {
		r.sendServiceError(clientID, "", err)
	}
}

func (r *Router) handleCreateTask(ctx context.Context, clientID string, payload json.RawMessage) {
	var p protocol.CreateTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid CREATE_TASK payload", ""))
		return
	}

	task, err := r.store.CreateTask(ctx, db.CreateParams{
		Title:       p.Title,
		Description: p.Description,
		ColumnID:    p.ColumnID,
		Position:    p.Position,
	})
	if err != nil {
		r.sendServiceError(clientID, "", err)
		return
	}

	// Everyone, including the sender: the temp id rides along so the
	// sender can swap its optimistic row for the authoritative one.
	r.hub.BroadcastAll(protocol.ServerMessage{
		Type:    protocol.MsgTaskCreated,
		Payload: protocol.TaskCreatedPayload{Task: task, TempID: p.TempID},
	})
}

func (r *Router) handleUpdateTask(ctx context.Context, clientID string, payload json.RawMessage) {
	var p protocol.UpdateTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid UPDATE_TASK payload", ""))
		return
	}

	task, cf, err := r.store.UpdateTask(ctx, p.TaskID, p.BaseVersion, db.UpdateChanges{
		Title:       p.Changes.Title,
		Description: p.Changes.Description,
	})
	if err != nil {
		r.sendServiceError(clientID, p.TaskID, err)
		return
	}
	r.routeMutation(clientID, protocol.MsgTaskUpdated, task, cf)
}

func (r *Router) handleMoveTask(ctx context.Context, clientID string, payload json.RawMessage) {
	var p protocol.MoveTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid MOVE_TASK payload", ""))
		return
	}

	task, cf, needsRebalance, err := r.store.MoveTask(ctx, p.TaskID, p.BaseVersion, p.ColumnID, p.Position)
	if err != nil {
		r.sendServiceError(clientID, p.TaskID, err)
		return
	}
	r.routeMutation(clientID, protocol.MsgTaskMoved, task, cf)

	if needsRebalance {
		r.rebalance(ctx, clientID, task.ColumnID)
	}
}

func (r *Router) handleDeleteTask(ctx context.Context, clientID string, payload json.RawMessage) {
	var p protocol.DeleteTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid DELETE_TASK payload", ""))
		return
	}

	deleted, err := r.store.DeleteTask(ctx, p.TaskID, p.BaseVersion)
	if err != nil {
		r.sendServiceError(clientID, p.TaskID, err)
		return
	}
	if !deleted {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeNotFound, "task not found", p.TaskID))
		return
	}
	r.hub.BroadcastAll(protocol.ServerMessage{
		Type:    protocol.MsgTaskDeleted,
		Payload: protocol.TaskDeletedPayload{TaskID: p.TaskID},
	})
}

func (r *Router) handlePresenceUpdate(clientID string, payload json.RawMessage) {
	var p protocol.PresenceUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid PRESENCE_UPDATE payload", ""))
		return
	}

	// The session identity wins over whatever clientId the payload claims.
	updated := r.presence.UpdateUser(clientID, presence.Update{
		Username:    p.Username,
		ViewingTask: p.ViewingTask,
		EditingTask: p.EditingTask,
	})
	if updated == nil {
		// Unknown session; nothing changed, nothing to broadcast.
		return
	}
	r.BroadcastPresence("")
}

func (r *Router) handleReplayQueue(ctx context.Context, clientID string, payload json.RawMessage) {
	var p protocol.ReplayQueuePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeInvalidJSON, "invalid REPLAY_QUEUE payload", ""))
		return
	}

	r.log.Info("replaying offline queue", "client", clientID, "operations", len(p.Operations))

	// Strictly sequential: each queued op completes before the next starts,
	// and stale base versions flow through the normal conflict pipeline.
	for _, op := range p.Operations {
		r.dispatch(ctx, clientID, op.Type, op.Payload, true)
	}
}

// routeMutation applies the conflict broadcast policy for updates and moves:
//   - clean: broadcast the new state to everyone.
//   - partial merge: CONFLICT_RESOLVED to the sender, then the merged state
//     to everyone (the sender's optimistic state is now superseded).
//   - fully rejected: CONFLICT_RESOLVED to the sender; everyone else gets the
//     unchanged current state to re-confirm it.
func (r *Router) routeMutation(clientID, msgType string, task *models.Task, cf *db.Conflict) {
	stateMsg := protocol.ServerMessage{Type: msgType, Payload: task}

	if cf == nil {
		r.hub.BroadcastAll(stateMsg)
		return
	}

	r.hub.SendTo(clientID, protocol.ServerMessage{
		Type: protocol.MsgConflictResolved,
		Payload: protocol.ConflictResolvedPayload{
			TaskID:         task.ID,
			Resolution:     cf.Resolution,
			Task:           task,
			MergedFields:   cf.MergedFields,
			RejectedFields: cf.RejectedFields,
			Reason:         cf.Reason,
		},
	})

	if cf.Resolution == db.ResolutionRejected {
		r.hub.Broadcast(stateMsg, clientID)
	} else {
		r.hub.BroadcastAll(stateMsg)
	}
}

// rebalance re-lays out a column after a move landed within MinGap of a
// neighbour and broadcasts the result. The commit is atomic; the broadcast is
// best-effort (clients reconcile via SYNC_REQUEST or version stamps).
func (r *Router) rebalance(ctx context.Context, clientID string, columnID models.ColumnID) {
	tasks, err := r.store.RebalanceColumn(ctx, columnID)
	if err != nil {
		r.log.Error("rebalance column", "column", columnID, "err", err)
		r.sendServiceError(clientID, "", err)
		return
	}
	r.log.Info("column rebalanced", "column", columnID, "tasks", len(tasks))
	r.hub.BroadcastAll(protocol.ServerMessage{
		Type:    protocol.MsgRebalanced,
		Payload: protocol.RebalancedPayload{ColumnID: columnID, Tasks: tasks},
	})
}

// sendServiceError maps task-service failures onto wire error codes.
func (r *Router) sendServiceError(clientID, taskID string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		r.hub.SendTo(clientID, protocol.Error(protocol.CodeNotFound, "task not found", taskID))
		return
	}
	r.log.Error("service error", "client", clientID, "task", taskID, "err", err)
	r.hub.SendTo(clientID, protocol.Error(protocol.CodeInternalError, err.Error(), taskID))
}
