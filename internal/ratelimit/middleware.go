package ratelimit

import (
	"github.com/gofiber/fiber/v3"

	"github.com/warpgate-live/warpgate-server/internal/httputil"
)

// keyUnknown is used when no client IP could be resolved, so unattributable
// traffic still shares one bucket.
const keyUnknown = "unknown"

// Middleware returns Fiber middleware that rejects requests exceeding the
// limiter's window with 429. resolveIP extracts the client IP from the request;
// an empty result falls back to a shared bucket.
func Middleware(l *Limiter, resolveIP func(fiber.Ctx) string) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := resolveIP(c)
		if key == "" {
			key = keyUnknown
		}
		if !l.Allow(key) {
			return httputil.Fail(c, fiber.StatusTooManyRequests, "Too many requests")
		}
		return c.Next()
	}
}
