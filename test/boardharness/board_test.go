package boardharness

import (
	"encoding/json"
	"testing"

	"github.com/anupamxy/kanban-board/internal/models"
	"github.com/anupamxy/kanban-board/internal/position"
	"github.com/anupamxy/kanban-board/internal/protocol"
)

func TestConnectReceivesSnapshotThenOthersSeePresence(t *testing.T) {
	h := NewHarness(t)

	a := h.Connect("client-a", "alice")
	var snap protocol.InitialStatePayload
	a.Decode(a.WaitFor(protocol.MsgInitialState), &snap)
	if len(snap.Tasks) != 0 {
		t.Errorf("fresh board: %d tasks", len(snap.Tasks))
	}
	if len(snap.Presence) != 1 || snap.Presence[0].ClientID != "client-a" {
		t.Errorf("presence: %+v", snap.Presence)
	}
	if snap.Presence[0].Color == "" {
		t.Error("presence entries carry a palette color")
	}

	b := h.Connect("client-b", "bob")
	var bSnap protocol.InitialStatePayload
	b.Decode(b.WaitFor(protocol.MsgInitialState), &bSnap)
	if len(bSnap.Presence) != 2 {
		t.Errorf("second client snapshot presence: %+v", bSnap.Presence)
	}

	// The first client hears about the newcomer.
	f := a.WaitMatch(protocol.MsgPresenceUpdate, func(p json.RawMessage) bool {
		var users []models.PresenceUser
		return json.Unmarshal(p, &users) == nil && len(users) == 2
	})
	if f.Type != protocol.MsgPresenceUpdate {
		t.Fatalf("got %s", f.Type)
	}
}

func TestCreateTaskFansOutWithTempID(t *testing.T) {
	h := NewHarness(t)
	a := h.Connect("client-a", "alice")
	b := h.Connect("client-b", "bob")
	a.WaitFor(protocol.MsgInitialState)
	b.WaitFor(protocol.MsgInitialState)

	a.Send(protocol.MsgCreateTask, protocol.CreateTaskPayload{
		ClientID: "client-a",
		TempID:   "tmp-1",
		Title:    "ship it",
		ColumnID: models.ColumnTodo,
	})

	for _, c := range []*Client{a, b} {
		var p protocol.TaskCreatedPayload
		c.Decode(c.WaitFor(protocol.MsgTaskCreated), &p)
		if p.TempID != "tmp-1" {
			t.Errorf("%s: tempId %q", c.ID, p.TempID)
		}
		if p.Task == nil || p.Task.Title != "ship it" || p.Task.Position != position.Step {
			t.Errorf("%s: task %+v", c.ID, p.Task)
		}
	}
}

// Two moves from the same base version: the first commits, the second is
// rejected and its sender is told; everyone else re-confirms current state.
func TestMoveVsMoveEndToEnd(t *testing.T) {
	h := NewHarness(t)
	a := h.Connect("client-a", "alice")
	b := h.Connect("client-b", "bob")
	a.WaitFor(protocol.MsgInitialState)
	b.WaitFor(protocol.MsgInitialState)

	a.Send(protocol.MsgCreateTask, protocol.CreateTaskPayload{
		ClientID: "client-a", TempID: "tmp", Title: "T", ColumnID: models.ColumnTodo,
	})
	var created protocol.TaskCreatedPayload
	a.Decode(a.WaitFor(protocol.MsgTaskCreated), &created)
	b.WaitFor(protocol.MsgTaskCreated)
	taskID := created.Task.ID

	a.Send(protocol.MsgMoveTask, protocol.MoveTaskPayload{
		ClientID: "client-a", TaskID: taskID, BaseVersion: 1,
		ColumnID: models.ColumnInProgress, Position: position.Step,
	})
	var moved models.Task
	a.Decode(a.WaitFor(protocol.MsgTaskMoved), &moved)
	b.WaitFor(protocol.MsgTaskMoved)
	if moved.ColumnID != models.ColumnInProgress || moved.Version != 2 {
		t.Fatalf("winning move: %+v", moved)
	}

	b.Send(protocol.MsgMoveTask, protocol.MoveTaskPayload{
		ClientID: "client-b", TaskID: taskID, BaseVersion: 1,
		ColumnID: models.ColumnDone, Position: position.Step,
	})
	var cr protocol.ConflictResolvedPayload
	b.Decode(b.WaitFor(protocol.MsgConflictResolved), &cr)
	if cr.Resolution != "REJECTED" {
		t.Errorf("resolution: %s", cr.Resolution)
	}
	if cr.Task.ColumnID != models.ColumnInProgress {
		t.Errorf("authoritative column: %s", cr.Task.ColumnID)
	}

	// The non-sender re-confirms the unchanged state.
	var reconfirmed models.Task
	a.Decode(a.WaitFor(protocol.MsgTaskMoved), &reconfirmed)
	if reconfirmed.Version != 2 || reconfirmed.ColumnID != models.ColumnInProgress {
		t.Errorf("re-confirmed state: %+v", reconfirmed)
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	h := NewHarness(t)
	a := h.Connect("client-a", "alice")
	b := h.Connect("client-b", "bob")
	a.WaitFor(protocol.MsgInitialState)
	b.WaitFor(protocol.MsgInitialState)

	b.Close()

	a.WaitMatch(protocol.MsgPresenceUpdate, func(p json.RawMessage) bool {
		var users []models.PresenceUser
		if json.Unmarshal(p, &users) != nil {
			return false
		}
		return len(users) == 1 && users[0].ClientID == "client-a"
	})
}

func TestProtocolErrorsKeepSessionOpen(t *testing.T) {
	h := NewHarness(t)
	a := h.Connect("client-a", "alice")
	a.WaitFor(protocol.MsgInitialState)

	a.SendRaw([]byte(`not json`))
	var e protocol.ErrorPayload
	a.Decode(a.WaitFor(protocol.MsgError), &e)
	if e.Code != protocol.CodeInvalidJSON {
		t.Errorf("code: %s", e.Code)
	}

	// Session still works.
	a.Send(protocol.MsgSyncRequest, protocol.SyncRequestPayload{ClientID: "client-a"})
	a.WaitFor(protocol.MsgInitialState)
}
