package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anupamxy/kanban-board/internal/db"
	"github.com/anupamxy/kanban-board/internal/models"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(LoadConfig(), store, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Timestamp   string `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Connections != 0 || body.Timestamp == "" {
		t.Errorf("body: %+v", body)
	}
}

func TestListTasksEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)

	if _, err := srv.store.CreateTask(context.Background(), db.CreateParams{
		Title: "from rest", ColumnID: models.ColumnTodo,
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/tasks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tasks) != 1 || body.Tasks[0].Title != "from rest" {
		t.Errorf("tasks: %+v", body.Tasks)
	}
}

func TestMutationsNotExposedOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/tasks", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("POST /api/tasks must not exist; mutations are websocket-only")
	}
}

func TestLast4(t *testing.T) {
	cases := map[string]string{
		"abcdef": "cdef",
		"ab":     "ab",
		"":       "",
	}
	for in, want := range cases {
		if got := last4(in); got != want {
			t.Errorf("last4(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" || cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("defaults: %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BOARD_LISTEN_ADDR", ":9999")
	t.Setenv("BOARD_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("BOARD_LOG_LEVEL", "debug")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" || cfg.ShutdownTimeout.Seconds() != 5 || cfg.LogLevel != "debug" {
		t.Errorf("overrides: %+v", cfg)
	}
}
