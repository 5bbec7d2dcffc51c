package feed

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WSHandler upgrades /ws/feed requests and streams hub events to the client.
type WSHandler struct {
	hub    *Hub
	logger *zap.Logger
}

func NewWSHandler(hub *Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

func (h *WSHandler) Register(r *gin.Engine) {
	if h == nil || r == nil {
		return
	}
	r.GET("/ws/feed", h.serve)
}

func (h *WSHandler) serve(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// Reader goroutine: clients send nothing meaningful, but reading is how
	// close frames and dead connections are detected.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("feed subscriber connected", zap.String("remote", c.ClientIP()))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				h.logger.Debug("feed subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}
