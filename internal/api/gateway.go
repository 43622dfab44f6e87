package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/httputil"
)

// GatewayHandler serves the WebSocket upgrade endpoint.
type GatewayHandler struct {
	hub *gateway.Hub
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(hub *gateway.Hub) *GatewayHandler {
	return &GatewayHandler{hub: hub}
}

// Upgrade handles the configured WebSocket path. Behind a proxy the forwarded
// scheme must be https; direct connections without the header are accepted for
// local development.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if proto := c.Get("x-forwarded-proto"); proto != "" && proto != "https" {
		return httputil.Fail(c, fiber.StatusBadRequest, "Insecure connection")
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	ip := ResolveClientIP(c)
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn, ip)
	})(c)
}
