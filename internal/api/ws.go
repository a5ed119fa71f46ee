package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Inbound frames are small JSON mutations; anything larger is a broken or
// hostile client.
const maxFrameSize = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Auth and origin policy are out of scope; the board accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSession adapts a websocket connection to the hub's Session interface.
// gorilla connections allow a single concurrent writer, so sends serialize
// through a mutex.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket is the connection supervisor. It accepts a session, parses
// the client identity from the upgrade URL, registers the session with the
// hub and presence registry, sends the initial snapshot, and then pumps
// inbound frames through the router one at a time so a session's messages
// apply in receive order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = fmt.Sprintf("anon-%d", time.Now().UnixMilli())
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "User-" + last4(clientID)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade", "client", clientID, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	sess := &wsSession{conn: conn}
	s.hub.Register(clientID, sess)
	s.presence.AddUser(clientID, username)
	s.log.Info("client connected", "client", clientID, "username", username)

	if err := s.router.SendInitialState(r.Context(), clientID); err != nil {
		s.log.Error("send initial state", "client", clientID, "err", err)
	}
	// Everyone else learns about the newcomer; the newcomer already has the
	// full presence list in its snapshot.
	s.router.BroadcastPresence(clientID)

	defer func() {
		s.hub.Unregister(clientID)
		s.presence.RemoveUser(clientID)
		conn.Close()
		s.log.Info("client disconnected", "client", clientID)
		s.router.BroadcastPresence("")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read", "client", clientID, "err", err)
			}
			return
		}
		s.router.HandleMessage(r.Context(), clientID, data)
	}
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
