package realtime

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/fingerprint"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the outbound WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MatchEvent is the payload of a "match" message.
type MatchEvent struct {
	SessionID string    `json:"session_id"`
	Matches   []Match   `json:"matches"`
	Timestamp time.Time `json:"timestamp"`
	Stats     Stats     `json:"stats"`
}

// MatchPublisher fans a session's match events out to other instances.
// Optional.
type MatchPublisher interface {
	PublishMatchEvent(sessionID string, event MatchEvent) error
}

// Client is one live audio connection. Binary frames carry little-endian
// float32 PCM at the configured sample rate; JSON frames flow back out with
// match results, status and errors.
type Client struct {
	ID       string
	registry *Registry
	matcher  *Matcher
	pub      MatchPublisher
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// session is created lazily on the first audio chunk and destroyed on
// disconnect.
func ServeWs(registry *Registry, matcher *Matcher, pub MatchPublisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			registry: registry,
			matcher:  matcher,
			pub:      pub,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		go client.writePump()
		client.sendStatus("listening")
		client.readPump(c.Request.Context())
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.registry.Destroy(c.ID)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		if msgType != websocket.BinaryMessage {
			// Text frames are ignored; audio only travels binary.
			continue
		}
		samples := decodeChunk(data)
		if len(samples) == 0 {
			continue
		}

		session := c.registry.GetOrCreate(c.ID)
		session.AddSamples(samples)
		if !session.ShouldProcess() {
			continue
		}

		matches, stats, err := session.ProcessBuffer(ctx, c.matcher)
		if err != nil {
			var extractErr *fingerprint.ExtractionError
			if errors.As(err, &extractErr) {
				// Not enough signal in the window yet; keep listening.
				c.logger.Debug("window not matchable",
					zap.String("session_id", c.ID), zap.Error(err))
				continue
			}
			c.logger.Warn("buffer match failed",
				zap.String("session_id", c.ID), zap.Error(err))
			c.sendError("match lookup failed")
			continue
		}

		event := MatchEvent{
			SessionID: c.ID,
			Matches:   matches,
			Timestamp: time.Now(),
			Stats:     stats,
		}
		c.sendJSON("match", event)
		if c.pub != nil {
			if err := c.pub.PublishMatchEvent(c.ID, event); err != nil {
				c.logger.Warn("match fanout failed",
					zap.String("session_id", c.ID), zap.Error(err))
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendJSON(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
		// buffer full, skip
	}
}

func (c *Client) sendStatus(text string) {
	c.sendJSON("status", map[string]string{"message": text})
}

func (c *Client) sendError(text string) {
	c.sendJSON("error", map[string]string{"message": text})
}

// decodeChunk turns a binary frame of little-endian float32 PCM into float64
// samples. A trailing partial value is dropped.
func decodeChunk(data []byte) []float64 {
	n := len(data) / 4
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples
}
