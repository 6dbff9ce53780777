package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/dispatch"
	"github.com/taskflow/taskflow/internal/events/bus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// StreamHandler forwards intent outcomes from the event bus to websocket
// clients. Each connection gets its own bus subscriptions; the view layer
// treats the stream as its re-render signal.
type StreamHandler struct {
	bus      bus.EventBus
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a websocket outcome stream handler.
func NewStreamHandler(eventBus bus.EventBus, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		bus:    eventBus,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream upgrades the connection and forwards board and auth outcomes.
// GET /ws
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan []byte, 64)
	forward := func(_ context.Context, event *bus.Event) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		select {
		case send <- data:
		default:
			h.logger.Warn("dropping outcome event, client too slow",
				zap.String("event_type", event.Type),
			)
		}
		return nil
	}

	boardSub, err := h.bus.Subscribe(dispatch.SubjectBoardPrefix+">", forward)
	if err != nil {
		h.logger.Error("failed to subscribe to board outcomes", zap.Error(err))
		conn.Close()
		return
	}
	authSub, err := h.bus.Subscribe(dispatch.SubjectAuthPrefix+">", forward)
	if err != nil {
		h.logger.Error("failed to subscribe to auth outcomes", zap.Error(err))
		boardSub.Unsubscribe()
		conn.Close()
		return
	}

	done := make(chan struct{})
	go h.readPump(conn, done)
	go h.writePump(conn, send, done, boardSub, authSub)
}

// readPump drains client frames; the stream is one-way, reads only detect
// the close.
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}, subs ...bus.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		conn.Close()
	}()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
