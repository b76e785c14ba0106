package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/orderdesk/internal/api/http/handlers"
	"github.com/spec-kit/orderdesk/internal/auth"
	"github.com/spec-kit/orderdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Catalog         *handlers.CatalogHandler
	Settings        *handlers.SettingsHandler
	Images          *handlers.ImageHandler
	Chat            *handlers.ChatHandler
	Tickets         *handlers.TicketsHandler
	AdminMiddleware *auth.AdminMiddleware
	Metrics         *observability.Metrics
	// StaticDir serves the storefront front-end when set.
	StaticDir string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	app.Get("/favicon.ico", handlers.Favicon)

	api := app.Group("/api")
	api.Get("/products", cfg.Catalog.Products)
	api.Get("/settings", cfg.Settings.Get)
	api.Post("/save_settings", cfg.AdminMiddleware.Handle, cfg.Settings.Save)
	api.Get("/img", cfg.Images.Image)

	admin := api.Group("/admin", cfg.AdminMiddleware.Handle)
	admin.Get("/tickets", cfg.Tickets.ListOpen)
	admin.Get("/tickets/:id", cfg.Tickets.Get)
	admin.Post("/tickets/sweep", cfg.Tickets.Sweep)

	app.Post("/chat/updates", cfg.AdminMiddleware.Handle, cfg.Chat.Update)

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}
	app.Use(notFound)
}
