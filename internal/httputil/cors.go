package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// CORS returns middleware that attaches the admin-surface CORS headers to every
// response and answers OPTIONS preflights with 204. Fiber's cors middleware
// refuses the wildcard-origin-with-credentials combination this surface has
// always exposed, so the headers are set by hand.
func CORS(allowOrigins string) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", allowOrigins)
		c.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "content-type, x-admin-key, x-forwarded-for, x-forwarded-proto")
		c.Set("Access-Control-Allow-Credentials", "true")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
