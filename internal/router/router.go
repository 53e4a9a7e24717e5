// Package router wires the fiber app: global middleware, the API key gate
// and every route of the HTTP surface.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/handlers"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/middleware"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, h *handlers.Handler, cfg config.Config) {
	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	// API key authentication middleware
	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)

	// API v1 routes (protected by API key)
	v1 := app.Group("/v1", authMiddleware)
	tenant := v1.Group("/tenants/:tenant")

	// Component Registry Routes
	tenant.Post("/components", h.CreateComponent)
	tenant.Get("/components", h.ListComponents)
	tenant.Get("/components/:component", h.GetComponent)
	tenant.Patch("/components/:component", h.UpdateComponent)

	comp := tenant.Group("/components/:component")

	// Subscription Routes
	comp.Post("/targets/:target/subscribers", h.Subscribe)
	comp.Delete("/targets/:target/subscribers/:subscriber", h.Unsubscribe)
	comp.Get("/targets/:target/subscribers", h.ListTargetSubscribers)
	comp.Get("/targets/:target/subscribers/count", h.CountSubscribers)
	comp.Get("/targets/:target/subscribers/:subscriber", h.IsSubscriber)
	comp.Get("/subscribers/:subscriber/targets", h.ListSubscriberTargets)

	// Post Routes
	comp.Post("/spaces/:space/posts", h.RegisterPost)
	comp.Get("/spaces/:space/posts", h.ListSpacePosts)
	comp.Get("/posts/:post_id", h.GetPost)
	comp.Put("/posts/:post_id", h.ModifyPost)
	comp.Delete("/posts/:post_id", h.RemovePost)

	// Feed Routes
	comp.Get("/owners/:owner/feeds", h.ListFeeds)

	// 404 handler
	app.Use(h.NotFound)
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, h *handlers.Handler, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Feedgrid API",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, h, cfg)

	return app
}
