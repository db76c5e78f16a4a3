package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/qaduni/status/internal/hub"
	"github.com/qaduni/status/internal/middleware"
)

type LiveHandler struct {
	hub *hub.Hub
}

func NewLiveHandler(h *hub.Hub) *LiveHandler {
	return &LiveHandler{hub: h}
}

// UpgradeCheck rejects plain HTTP requests to the live feed.
func (h *LiveHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Stream pushes probe.result and alert.fired events of the caller's
// endpoints until the client disconnects.
func (h *LiveHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		owner, ok := c.Locals(middleware.OwnerKey).(uuid.UUID)
		if !ok {
			c.WriteMessage(websocket.TextMessage, []byte("Error: unauthenticated"))
			return
		}
		h.hub.Serve(c, owner)
	})
}
