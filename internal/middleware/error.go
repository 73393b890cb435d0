package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/regionbrief/regionbrief/internal/logger"
)

// ErrorHandler is the fiber app-level error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	if code >= fiber.StatusInternalServerError {
		logger.Get().Error().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Err(err).
			Msg("Request failed")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
