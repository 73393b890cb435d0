package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/logger"
	"github.com/regionbrief/regionbrief/internal/pipeline"
	"github.com/regionbrief/regionbrief/internal/storage"
	"github.com/regionbrief/regionbrief/internal/topic"
)

// RegionAll selects every configured region in a run request.
const RegionAll = "ALL"

type Handlers struct {
	feeds      *config.Feeds
	pipeline   *pipeline.Pipeline
	digests    *storage.Storage
	classifier *topic.Classifier
	validate   *validator.Validate
}

func NewHandlers(feeds *config.Feeds, p *pipeline.Pipeline,
	digests *storage.Storage, classifier *topic.Classifier) *Handlers {
	return &Handlers{
		feeds:      feeds,
		pipeline:   p,
		digests:    digests,
		classifier: classifier,
		validate:   validator.New(),
	}
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"regions": h.feeds.Codes(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// GetTopics handles GET /api/v1/topics
func (h *Handlers) GetTopics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"topics": h.classifier.Topics(),
	})
}

// GetDigests handles GET /api/v1/digests
func (h *Handlers) GetDigests(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	switch {
	case pageSize > 100:
		pageSize = 100
	case pageSize <= 0:
		pageSize = 20
	}

	digests, err := h.digests.ListDigests(c.Context(), page, pageSize)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error listing digests")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list digests",
		})
	}

	return c.JSON(fiber.Map{
		"page":      page,
		"page_size": pageSize,
		"total":     len(digests),
		"items":     digests,
	})
}

// GetDigestByID handles GET /api/v1/digests/:id
func (h *Handlers) GetDigestByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Digest ID is required",
		})
	}

	digest, err := h.digests.GetDigestByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Digest not found",
		})
	}
	return c.JSON(digest)
}

// GetStateStats handles GET /api/v1/state/stats
func (h *Handlers) GetStateStats(c *fiber.Ctx) error {
	stats, err := h.pipeline.StateStats(c.Context())
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error reading dedup stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read dedup state",
		})
	}

	return c.JSON(fiber.Map{
		"regions": stats,
	})
}

// RunRequest is the body of POST /api/v1/admin/run.
type RunRequest struct {
	Region string `json:"region" validate:"required,min=2,max=8"`
}

// TriggerRun handles POST /api/v1/admin/run. Unknown region selectors are
// rejected here, before the pipeline is ever invoked.
func (h *Handlers) TriggerRun(c *fiber.Ctx) error {
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "region is required (a region code or ALL)",
		})
	}

	region := strings.ToUpper(strings.TrimSpace(req.Region))

	if region == RegionAll {
		results := h.pipeline.RunAll(c.Context())
		return c.JSON(fiber.Map{"results": results})
	}

	if _, ok := h.feeds.Region(region); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown region: " + region,
		})
	}

	result, err := h.pipeline.Run(c.Context(), region)
	if err != nil {
		logger.Get().Error().Str("region", region).Err(err).Msg("On-demand run failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Run failed",
		})
	}
	return c.JSON(fiber.Map{"results": []pipeline.RunResult{result}})
}

// TriggerPrune handles POST /api/v1/admin/prune
func (h *Handlers) TriggerPrune(c *fiber.Ctx) error {
	removed, err := h.pipeline.PruneState(c.Context())
	if err != nil {
		logger.Get().Error().Err(err).Msg("On-demand prune failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Prune failed",
		})
	}

	return c.JSON(fiber.Map{"removed": removed})
}
