// Package boardharness runs multi-client end-to-end tests against a live
// board server: a real HTTP listener, real websocket sessions, and an
// in-memory SQLite store. Each client owns one connection and reads frames
// synchronously so tests stay deterministic.
package boardharness

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anupamxy/kanban-board/internal/api"
	"github.com/anupamxy/kanban-board/internal/db"
)

const readTimeout = 5 * time.Second

// Frame is a decoded server message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Harness owns the server under test.
type Harness struct {
	t     *testing.T
	TS    *httptest.Server
	Store *db.DB
}

// NewHarness starts a board server on an ephemeral port with an in-memory
// store.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := api.NewServer(api.LoadConfig(), store, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &Harness{t: t, TS: ts, Store: store}
}

// Client is one websocket session.
type Client struct {
	t    *testing.T
	ID   string
	conn *websocket.Conn
	buf  []Frame
}

// Connect opens a session with the given identity. The caller usually waits
// for INITIAL_STATE next.
func (h *Harness) Connect(clientID, username string) *Client {
	h.t.Helper()

	url := "ws" + strings.TrimPrefix(h.TS.URL, "http") +
		"/ws?clientId=" + clientID + "&username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatalf("dial %s: %v", clientID, err)
	}

	c := &Client{t: h.t, ID: clientID, conn: conn}
	h.t.Cleanup(c.Close)
	return c
}

// Close shuts the session down; safe to call twice.
func (c *Client) Close() {
	c.conn.Close()
}

// Send writes one client message frame.
func (c *Client) Send(msgType string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(map[string]any{"type": msgType, "payload": payload})
	if err != nil {
		c.t.Fatalf("%s: encode %s: %v", c.ID, msgType, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("%s: send %s: %v", c.ID, msgType, err)
	}
}

// SendRaw writes an arbitrary text frame, for exercising the protocol error
// paths.
func (c *Client) SendRaw(data []byte) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("%s: send raw: %v", c.ID, err)
	}
}

// WaitFor reads frames until one of the given type arrives, buffering
// everything else for later waits.
func (c *Client) WaitFor(msgType string) Frame {
	c.t.Helper()
	return c.WaitMatch(msgType, func(json.RawMessage) bool { return true })
}

// WaitMatch reads frames until one of the given type satisfies the
// predicate; non-matching frames are buffered.
func (c *Client) WaitMatch(msgType string, match func(payload json.RawMessage) bool) Frame {
	c.t.Helper()

	for i, f := range c.buf {
		if f.Type == msgType && match(f.Payload) {
			c.buf = append(c.buf[:i], c.buf[i+1:]...)
			return f
		}
	}

	deadline := time.Now().Add(readTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("%s: waiting for %s: %v (buffered: %v)", c.ID, msgType, err, c.bufTypes())
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.t.Fatalf("%s: bad frame: %v", c.ID, err)
		}
		if f.Type == msgType && match(f.Payload) {
			return f
		}
		c.buf = append(c.buf, f)
	}
}

// Decode unmarshals a frame payload into out.
func (c *Client) Decode(f Frame, out any) {
	c.t.Helper()
	if err := json.Unmarshal(f.Payload, out); err != nil {
		c.t.Fatalf("%s: decode %s payload: %v", c.ID, f.Type, err)
	}
}

func (c *Client) bufTypes() []string {
	out := make([]string, len(c.buf))
	for i, f := range c.buf {
		out[i] = f.Type
	}
	return out
}
