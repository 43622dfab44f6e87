package api

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/config"
	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/presence"
)

// HealthHandler serves the unauthenticated health endpoint.
type HealthHandler struct {
	cfg   *config.Config
	hub   *gateway.Hub
	store presence.Store
	start presence.StartTimeStore
	log   zerolog.Logger

	// startedAt caches the durable process start time once the store call
	// succeeds; failures fall back to the in-process boot time until then.
	mu        sync.Mutex
	startedAt int64
	bootedAt  int64
}

// NewHealthHandler creates a new health handler. bootedAt is the in-process
// start time in milliseconds, used whenever the durable value is unavailable.
func NewHealthHandler(cfg *config.Config, hub *gateway.Hub, store presence.Store, start presence.StartTimeStore, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:      cfg,
		hub:      hub,
		store:    store,
		start:    start,
		log:      logger.With().Str("component", "api").Logger(),
		bootedAt: time.Now().UnixMilli(),
	}
}

// Health handles GET /v1/health.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	now := time.Now().UnixMilli()
	startedAt := h.resolveStartedAt(ctx, now)

	body := fiber.Map{
		"ok":          true,
		"env":         h.cfg.ServerEnv,
		"version":     h.cfg.CommitHash,
		"startedAt":   startedAt,
		"uptimeMs":    now - startedAt,
		"timestamp":   now,
		"connections": h.hub.ConnectionCount(),
		"uniqueUsers": h.hub.UniqueUserCount(),
	}

	// The stored online count is best effort; the endpoint stays healthy when
	// the presence store is not.
	if count, err := h.store.CountOnlineUsers(ctx); err == nil {
		body["onlineUsers"] = count
	} else {
		h.log.Warn().Err(err).Msg("Failed to count online users for health check")
	}

	return c.JSON(body)
}

func (h *HealthHandler) resolveStartedAt(ctx context.Context, nowMS int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt != 0 {
		return h.startedAt
	}

	startedAt, err := h.start.EnsureStartedAt(ctx, h.cfg.ServerEnv, h.cfg.CommitHash, nowMS)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to resolve durable start time")
		return h.bootedAt
	}
	h.startedAt = startedAt
	return startedAt
}
