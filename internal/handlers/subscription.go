package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/models"
	"github.com/feedgrid/feedgrid/internal/subscription"
)

// Subscribe creates the subscription edge named by the path and body.
// Idempotent: re-subscribing an ACTIVE edge succeeds without effect.
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req models.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}
	if req.SubscriberID == "" {
		return errors.InvalidArguments("subscriber_id is required")
	}

	err := h.subscriptions.Subscribe(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("target"),
		req.SubscriberID,
		subscription.SubscribeOptions{Alarm: req.Alarm},
	)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unsubscribe removes the subscription edge. Unknown edges are a no-op.
func (h *Handler) Unsubscribe(c *fiber.Ctx) error {
	err := h.subscriptions.Unsubscribe(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("target"),
		c.Params("subscriber"),
	)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTargetSubscribers pages a target's subscribers
func (h *Handler) ListTargetSubscribers(c *fiber.Ctx) error {
	req, err := pageRequest(c)
	if err != nil {
		return err
	}

	page, err := h.subscriptions.ListTargetSubscribers(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("target"),
		req,
	)
	if err != nil {
		return err
	}
	return c.JSON(subscriptionPageResponse(page.Items, page.NextCursor))
}

// ListSubscriberTargets pages the targets one subscriber follows
func (h *Handler) ListSubscriberTargets(c *fiber.Ctx) error {
	req, err := pageRequest(c)
	if err != nil {
		return err
	}

	page, err := h.subscriptions.ListSubscriberTargets(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("subscriber"),
		req,
	)
	if err != nil {
		return err
	}
	return c.JSON(subscriptionPageResponse(page.Items, page.NextCursor))
}

// CountSubscribers returns the eventually-consistent subscriber counter
func (h *Handler) CountSubscribers(c *fiber.Ctx) error {
	count, err := h.subscriptions.CountSubscribers(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("target"),
	)
	if err != nil {
		return err
	}
	return c.JSON(models.SubscriberCountResponse{
		TargetID: c.Params("target"),
		Count:    count,
	})
}

// IsSubscriber reports whether the edge exists and is active
func (h *Handler) IsSubscriber(c *fiber.Ctx) error {
	subscribed, err := h.subscriptions.IsSubscriber(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("target"),
		c.Params("subscriber"),
	)
	if err != nil {
		return err
	}
	return c.JSON(models.IsSubscriberResponse{
		TargetID:     c.Params("target"),
		SubscriberID: c.Params("subscriber"),
		Subscribed:   subscribed,
	})
}

func subscriptionPageResponse(records []subscription.Record, nextCursor string) models.SubscriptionPageResponse {
	resp := models.SubscriptionPageResponse{
		Items:      make([]models.SubscriptionResponse, 0, len(records)),
		NextCursor: nextCursor,
	}
	for _, rec := range records {
		resp.Items = append(resp.Items, models.SubscriptionResponse{
			TargetID:     rec.TargetID,
			SubscriberID: rec.SubscriberID,
			Slot:         rec.Slot,
			Alarm:        rec.Alarm,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
