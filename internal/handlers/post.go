package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/models"
	"github.com/feedgrid/feedgrid/internal/post"
)

// RegisterPost creates a post in the space named by the path
func (h *Handler) RegisterPost(c *fiber.Ctx) error {
	var req models.RegisterPostRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}
	if req.OwnerID == "" {
		return errors.InvalidArguments("owner_id is required")
	}

	created, err := h.posts.Register(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("space"),
		req.OwnerID,
		post.Draft{Title: req.Title, Content: req.Content},
	)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(postResponse(*created))
}

// GetPost reads one post through the post cache
func (h *Handler) GetPost(c *fiber.Ctx) error {
	postID, err := pathPostID(c)
	if err != nil {
		return err
	}

	got, err := h.posts.Get(c.Context(), c.Params("tenant"), c.Params("component"), postID)
	if err != nil {
		return err
	}
	return c.JSON(postResponse(*got))
}

// ModifyPost replaces a post's draft content; only the owner may modify
func (h *Handler) ModifyPost(c *fiber.Ctx) error {
	postID, err := pathPostID(c)
	if err != nil {
		return err
	}

	var req models.ModifyPostRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}
	if req.ActorID == "" {
		return errors.InvalidArguments("actor_id is required")
	}

	modified, err := h.posts.Modify(
		c.Context(),
		c.Params("tenant"), c.Params("component"), postID,
		req.ActorID,
		post.Draft{Title: req.Title, Content: req.Content},
	)
	if err != nil {
		return err
	}
	return c.JSON(postResponse(*modified))
}

// RemovePost removes a post; only the owner may remove
func (h *Handler) RemovePost(c *fiber.Ctx) error {
	postID, err := pathPostID(c)
	if err != nil {
		return err
	}

	var req models.RemovePostRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}
	if req.ActorID == "" {
		return errors.InvalidArguments("actor_id is required")
	}

	if err := h.posts.Remove(c.Context(), c.Params("tenant"), c.Params("component"), postID, req.ActorID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListSpacePosts pages a space's posts
func (h *Handler) ListSpacePosts(c *fiber.Ctx) error {
	req, err := pageRequest(c)
	if err != nil {
		return err
	}

	page, err := h.posts.ListBySpace(
		c.Context(),
		c.Params("tenant"), c.Params("component"), c.Params("space"),
		req,
	)
	if err != nil {
		return err
	}

	resp := models.PostPageResponse{
		Items:      make([]models.PostResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, postResponse(p))
	}
	return c.JSON(resp)
}

func postResponse(p post.Post) models.PostResponse {
	return models.PostResponse{
		PostID:    p.PostID,
		SpaceID:   p.SpaceID,
		OwnerID:   p.OwnerID,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
