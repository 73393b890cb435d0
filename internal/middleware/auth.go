package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/regionbrief/regionbrief/internal/logger"
)

// AdminOnly guards mutating endpoints behind the admin API key. An empty
// configured key disables the endpoints entirely rather than leaving them
// open.
func AdminOnly(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminKey == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin endpoints are disabled (no ADMIN_API_KEY configured)",
			})
		}

		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Admin access attempt without API key")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is required",
			})
		}

		if apiKey != adminKey {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Unauthorized admin access attempt")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}
