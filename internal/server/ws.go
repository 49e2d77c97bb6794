package server

import (
	"net/http"
	"strings"
	"time"

	"tabsync/internal/session"
	"tabsync/pkg/models"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin for development
		// In production, check against allowed origins
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// handleCursorFeed upgrades /ws/cursor/{sessionID} and streams cursor states
// for a player session. Each connection gets its own broadcaster channel; a
// connection that cannot keep up is dropped rather than allowed to stall the
// cursor for everyone else.
func (s *SyncServer) handleCursorFeed(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 || pathParts[3] == "" {
		s.respondWithError(w, r, http.StatusBadRequest, "Session ID is required", nil)
		return
	}

	sess, ok := s.sessions.Get(pathParts[3])
	if !ok || sess.Kind != session.KindPlayer {
		s.respondWithError(w, r, http.StatusNotFound, "Player session not found", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &cursorClient{
		conn:    conn,
		player:  sess.Player,
		cursor:  sess.Player.Cursor(),
		updates: sess.Player.Cursor().Subscribe(),
		server:  s,
	}
	go client.writePump()
	go client.readPump()
}

// cursorClient is one live cursor feed connection.
type cursorClient struct {
	conn    *websocket.Conn
	player  *session.PlayerSession
	cursor  *session.CursorBroadcaster
	updates <-chan models.CursorState
	server  *SyncServer
}

// positionReport is the inbound frame: one transport clock sample, sent at
// display-refresh cadence while playing.
type positionReport struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

// readPump consumes transport position reports. Each report recomputes the
// cursor, which comes back to the client through the write pump.
func (c *cursorClient) readPump() {
	defer func() {
		c.cursor.Unsubscribe(c.updates)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var report positionReport
		if err := c.conn.ReadJSON(&report); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Warn("Cursor feed read error")
			}
			break
		}
		c.player.UpdatePosition(report.Position, report.Playing)
	}
}

func (c *cursorClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case state, ok := <-c.updates:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(state); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
