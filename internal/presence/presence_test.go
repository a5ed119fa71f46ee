package presence

import (
	"testing"
)

func TestAddUserAssignsColorsRoundRobin(t *testing.T) {
	r := NewRegistry()
	seen := map[string]int{}
	for i := 0; i < len(palette); i++ {
		u := r.AddUser(string(rune('a'+i)), "user")
		seen[u.Color]++
	}
	if len(seen) != len(palette) {
		t.Errorf("first %d users should get distinct colors, got %d", len(palette), len(seen))
	}

	// Beyond the palette the colors repeat; no uniqueness promised.
	u := r.AddUser("ninth", "user")
	if u.Color != palette[0] {
		t.Errorf("ninth user: got %s, want %s", u.Color, palette[0])
	}
}

func TestUpdateUserMergesPatch(t *testing.T) {
	r := NewRegistry()
	r.AddUser("c1", "alice")

	task := "t-1"
	u := r.UpdateUser("c1", Update{Username: "alice2", ViewingTask: &task})
	if u == nil {
		t.Fatal("expected updated entry")
	}
	if u.Username != "alice2" || u.ViewingTask == nil || *u.ViewingTask != "t-1" {
		t.Errorf("got %+v", u)
	}

	// Empty username keeps the old one; nil task pointers clear.
	u = r.UpdateUser("c1", Update{})
	if u.Username != "alice2" {
		t.Errorf("empty username must not overwrite: %q", u.Username)
	}
	if u.ViewingTask != nil {
		t.Error("nil patch must clear viewingTask")
	}
}

func TestUpdateUnknownUserReturnsNil(t *testing.T) {
	r := NewRegistry()
	if u := r.UpdateUser("ghost", Update{Username: "x"}); u != nil {
		t.Fatalf("got %+v", u)
	}
	if len(r.GetAllUsers()) != 0 {
		t.Error("update must not create entries")
	}
}

func TestRemoveUser(t *testing.T) {
	r := NewRegistry()
	r.AddUser("c1", "alice")
	r.RemoveUser("c1")
	if len(r.GetAllUsers()) != 0 {
		t.Error("entry should be gone")
	}
	// Removing twice is fine.
	r.RemoveUser("c1")
}

func TestGetAllUsersStableOrder(t *testing.T) {
	r := NewRegistry()
	r.AddUser("b", "bob")
	r.AddUser("a", "alice")

	first := r.GetAllUsers()
	second := r.GetAllUsers()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d/%d users", len(first), len(second))
	}
	for i := range first {
		if first[i].ClientID != second[i].ClientID {
			t.Errorf("snapshot order unstable: %v vs %v", first[i].ClientID, second[i].ClientID)
		}
	}
}
