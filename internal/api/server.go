// Package api hosts the outer surfaces of the board server: the read-only
// HTTP endpoints and the websocket connection supervisor. All task mutations
// travel over the duplex channel; HTTP is health and listing only.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anupamxy/kanban-board/internal/db"
	"github.com/anupamxy/kanban-board/internal/hub"
	"github.com/anupamxy/kanban-board/internal/presence"
	"github.com/anupamxy/kanban-board/internal/router"
)

// Server is the HTTP and websocket server for the board backend.
type Server struct {
	config    Config
	http      *http.Server
	store     *db.DB
	hub       *hub.Hub
	presence  *presence.Registry
	router    *router.Router
	log       *slog.Logger
	startedAt time.Time
}

// NewServer wires the store, hub, presence registry, and router into a
// server. The hub and presence maps are owned here and handed to the router
// by injection; there are no package-level singletons.
func NewServer(cfg Config, store *db.DB, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	h := hub.New(log)
	reg := presence.NewRegistry()

	s := &Server{
		config:    cfg,
		store:     store,
		hub:       h,
		presence:  reg,
		router:    router.New(store, reg, h, log),
		log:       log,
		startedAt: time.Now().UTC(),
	}

	s.http = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server", "err", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the server. Open websocket sessions are closed by
// the HTTP server teardown; in-flight database transactions complete first.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the route tree for tests that mount the server on their
// own listener.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.Len(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"startedAt":   s.startedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.GetAllTasks(r.Context())
	if err != nil {
		s.log.Error("list tasks", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
