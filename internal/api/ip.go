package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

// ResolveClientIP returns the originating client address as reported by the
// proxy chain. Headers are consulted in trust order; an empty string means no
// proxy header was present.
func ResolveClientIP(c fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("cf-connecting-ip")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(c.Get("x-real-ip")); ip != "" {
		return ip
	}
	if fwd := c.Get("x-forwarded-for"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return ""
}
