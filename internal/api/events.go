package api

import (
	"net/http"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// events streams monitor events as JSON text frames. ?server=<id> limits the
// stream to one server; ?type=status|snapshot|job to one event type.
func (s *Server) events(c *gin.Context) {
	serverID := c.Query("server")
	if serverID != "" {
		if _, err := s.mon.Server(serverID); err != nil {
			writeError(c, err)
			return
		}
	}
	eventType := monitor.EventType(c.Query("type"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.mon.Events().Subscribe()
	defer unsubscribe()
	s.log.Debug("event subscriber connected from %s", c.ClientIP())

	// The read side only exists to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor stopped"))
				return
			}
			if serverID != "" && ev.ServerID != serverID {
				continue
			}
			if eventType != "" && ev.Type != eventType {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("event subscriber write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.log.Debug("event subscriber from %s disconnected", c.ClientIP())
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
