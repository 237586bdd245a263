package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the dashboard may be served from another origin in development
	CheckOrigin: func(*http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

type wsClientMessage struct {
	Type string `json:"type"`
}

// handleProgressWS upgrades the connection and streams hub events to the
// client. The client may send {"type":"ping"} and gets {"type":"pong"}
// back; anything else from the client is ignored.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws.upgrade_failed", "error", err)
		return
	}

	subID, events := s.hub.Subscribe()
	s.logger.Info("ws.connected", "subscriber_id", subID, "remote", r.RemoteAddr)

	pongs := make(chan struct{}, 4)
	done := make(chan struct{})

	// single writer goroutine; gorilla connections are not write-concurrent
	go func() {
		defer conn.Close()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(wsWriteWait))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-pongs:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsClientMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}

	close(done)
	s.hub.Unsubscribe(subID)
	s.logger.Info("ws.disconnected", "subscriber_id", subID)
}
