// Package handlers contains the HTTP handlers of the API surface. Handlers
// parse and validate the edge DTOs, call the core services with explicit
// identifiers, and shape responses; all domain rules live in the services.
package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/component"
	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/feed"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/post"
	"github.com/feedgrid/feedgrid/internal/subscription"
)

// DefaultPageSize bounds listing responses when the caller names no size
const DefaultPageSize = 20

// MaxPageSize is the hard ceiling for one page
const MaxPageSize = 200

// Handler contains all HTTP handlers
type Handler struct {
	logger        *logging.Logger
	components    *component.Registry
	subscriptions *subscription.Service
	posts         *post.Service
	feeds         *feed.Service
}

// New creates a new handler instance
func New(
	logger *logging.Logger,
	components *component.Registry,
	subscriptions *subscription.Service,
	posts *post.Service,
	feeds *feed.Service,
) *Handler {
	return &Handler{
		logger:        logger,
		components:    components,
		subscriptions: subscriptions,
		posts:         posts,
		feeds:         feeds,
	}
}

// NotFound handles unmatched routes
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return errors.NotFound("no route for %s %s", c.Method(), c.Path())
}

// pageRequest reads the shared pagination query params
func pageRequest(c *fiber.Ctx) (cursor.Request, error) {
	req := cursor.Request{
		Cursor:    c.Query("cursor"),
		PageSize:  DefaultPageSize,
		Direction: cursor.DirectionNext,
	}

	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return cursor.Request{}, errors.InvalidArguments("malformed page_size %q", raw)
		}
		req.PageSize = size
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}

	if raw := c.Query("direction"); raw != "" {
		req.Direction = cursor.Direction(raw)
	}

	return req, req.Validate()
}

func pathPostID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("post_id")
	postID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.InvalidArguments("malformed post id %q", raw)
	}
	return postID, nil
}
