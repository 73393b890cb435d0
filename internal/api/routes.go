package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, handlers *Handlers, cfg *config.Config) {
	// Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	// API group with versioning
	api := app.Group("/api/v1")

	// Health check endpoint
	api.Get("/health", handlers.HealthCheck)

	// Read endpoints
	api.Get("/topics", handlers.GetTopics)
	api.Get("/state/stats", handlers.GetStateStats)

	digests := api.Group("/digests")
	{
		digests.Get("", handlers.GetDigests)       // List digests with pagination
		digests.Get("/:id", handlers.GetDigestByID) // Get single digest by ID
	}

	// Admin endpoints, guarded by the admin API key
	admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminAPIKey))
	{
		admin.Post("/run", handlers.TriggerRun)     // Run the pipeline on demand
		admin.Post("/prune", handlers.TriggerPrune) // Drop expired dedup entries
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
