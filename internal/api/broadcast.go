package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/httputil"
)

// BroadcastHandler serves the admin broadcast injection endpoint.
type BroadcastHandler struct {
	hub *gateway.Hub
	log zerolog.Logger
}

// NewBroadcastHandler creates a new broadcast handler.
func NewBroadcastHandler(hub *gateway.Hub, logger zerolog.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		hub: hub,
		log: logger.With().Str("component", "api").Logger(),
	}
}

type broadcastRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Broadcast handles POST /v1/broadcast. The payload fields are merged beside
// the type discriminator and fanned out to every open connection.
func (h *BroadcastHandler) Broadcast(c fiber.Ctx) error {
	var req broadcastRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "Invalid broadcast request")
	}
	if strings.TrimSpace(req.Type) == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, "Invalid broadcast request")
	}

	if err := h.hub.BroadcastPayload(req.Type, req.Payload); err != nil {
		h.log.Error().Err(err).Str("type", req.Type).Msg("Failed to serialise broadcast")
		return httputil.Fail(c, fiber.StatusInternalServerError, "Broadcast failed")
	}

	h.log.Info().Str("type", req.Type).Int("connections", h.hub.ConnectionCount()).Msg("Admin broadcast sent")
	return httputil.OK(c)
}
