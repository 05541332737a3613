package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionSubscriber delivers match events published for one session,
// regardless of which instance holds the session's socket.
type SessionSubscriber interface {
	SubscribeSession(sessionID string, handler func(event MatchEvent)) (cancel func(), err error)
}

// ServeFollow handles a read-only observer socket: it relays the given
// session's match events from the pub/sub bridge without touching the session
// itself. Inbound frames are ignored; disconnect tears the subscription down.
func ServeFollow(sub SessionSubscriber, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		f := &follower{
			sessionID: sessionID,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		cancel, err := sub.SubscribeSession(sessionID, f.relay)
		if err != nil {
			logger.Warn("session subscribe failed",
				zap.String("session_id", sessionID), zap.Error(err))
			_ = conn.Close()
			return
		}

		go f.writePump()
		f.sendJSON("status", map[string]string{"message": "following " + sessionID})
		f.readPump(cancel)
	}
}

type follower struct {
	sessionID string
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (f *follower) relay(event MatchEvent) {
	f.sendJSON("match", event)
}

// sendJSON is safe to call from the subscription goroutine even after the
// socket closed; late events are dropped.
func (f *follower) sendJSON(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.send <- WSMessage{Event: event, Data: data}:
	default:
		// buffer full, skip
	}
}

// readPump only watches for disconnect; followers never send audio.
func (f *follower) readPump(cancel func()) {
	defer func() {
		cancel()
		f.mu.Lock()
		f.closed = true
		close(f.send)
		f.mu.Unlock()
		_ = f.conn.Close()
	}()

	f.conn.SetReadLimit(512)
	_ = f.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	f.conn.SetPongHandler(func(string) error {
		_ = f.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})
	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			return
		}
		_ = f.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	}
}

func (f *follower) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = f.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-f.send:
			if !ok {
				_ = f.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := f.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
