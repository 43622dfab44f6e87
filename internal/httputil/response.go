package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// SuccessResponse is the body shape for successful admin API responses. Extra
// fields are attached by handlers through fiber.Map instead of this struct.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body shape for failed admin API responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OK sends a 200 response with {"success": true}.
func OK(c fiber.Ctx) error {
	return c.JSON(SuccessResponse{Success: true})
}

// Fail sends a JSON error response with the given status and message.
func Fail(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Message: message})
}
