package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"

	"github.com/warpgate-live/warpgate-server/internal/httputil"
)

// adminKeyHeader carries the shared admin secret on admin surface requests.
const adminKeyHeader = "x-admin-key"

// RequireAdminKey returns Fiber middleware that rejects requests whose
// x-admin-key header does not match the configured secret. The comparison is
// constant time.
func RequireAdminKey(adminKey string) fiber.Handler {
	return func(c fiber.Ctx) error {
		provided := c.Get(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			return httputil.Fail(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		return c.Next()
	}
}
