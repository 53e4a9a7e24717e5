package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/models"
)

// ListFeeds pages one owner's feed, newest entries first
func (h *Handler) ListFeeds(c *fiber.Ctx) error {
	req, err := pageRequest(c)
	if err != nil {
		return err
	}

	page, err := h.feeds.ListFeeds(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("owner"),
		req,
	)
	if err != nil {
		return err
	}

	resp := models.FeedPageResponse{
		Items:      make([]models.FeedEntryResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for _, entry := range page.Items {
		item := models.FeedEntryResponse{
			EventID:   entry.EventID,
			Resource:  string(entry.Resource),
			Action:    string(entry.Action),
			SourceID:  entry.SourceID,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if len(entry.Payload) > 0 {
			var payload interface{}
			if err := json.Unmarshal(entry.Payload, &payload); err == nil {
				item.Payload = payload
			}
		}
		resp.Items = append(resp.Items, item)
	}
	return c.JSON(resp)
}
