package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/models"
)

// Version is injected by the build
var Version = "dev"

// Health handles health check requests
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	})
}
