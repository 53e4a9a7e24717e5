package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/component"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/models"
)

// CreateComponent registers a component under a tenant
func (h *Handler) CreateComponent(c *fiber.Ctx) error {
	var req models.CreateComponentRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}

	created, err := h.components.Create(c.Context(), component.Component{
		TenantID:    c.Params("tenant"),
		ComponentID: req.ComponentID,
		Description: req.Description,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(componentResponse(created))
}

// GetComponent reads one component registration
func (h *Handler) GetComponent(c *fiber.Ctx) error {
	got, err := h.components.Get(c.Context(), c.Params("tenant"), c.Params("component"))
	if err != nil {
		return err
	}
	return c.JSON(componentResponse(got))
}

// ListComponents lists a tenant's components
func (h *Handler) ListComponents(c *fiber.Ctx) error {
	components, err := h.components.List(c.Context(), c.Params("tenant"))
	if err != nil {
		return err
	}

	resp := models.ComponentListResponse{Components: make([]models.ComponentResponse, 0, len(components))}
	for _, comp := range components {
		resp.Components = append(resp.Components, componentResponse(comp))
	}
	return c.JSON(resp)
}

// UpdateComponent changes a component's description and/or status
func (h *Handler) UpdateComponent(c *fiber.Ctx) error {
	var req models.UpdateComponentRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.InvalidArguments("malformed request body: %v", err)
	}

	updated, err := h.components.Update(c.Context(), component.Component{
		TenantID:    c.Params("tenant"),
		ComponentID: c.Params("component"),
		Description: req.Description,
		Status:      component.Status(req.Status),
	})
	if err != nil {
		return err
	}

	return c.JSON(componentResponse(updated))
}

func componentResponse(comp component.Component) models.ComponentResponse {
	return models.ComponentResponse{
		TenantID:    comp.TenantID,
		ComponentID: comp.ComponentID,
		Description: comp.Description,
		Status:      string(comp.Status),
		CreatedAt:   comp.CreatedAt.UTC().Format(time.RFC3339),
	}
}
