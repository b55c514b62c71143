package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-relay/internal/api/http/handlers"
	"github.com/spec-kit/ticket-relay/internal/auth"
)

// RouteConfig bundles dependencies for route registration. Tickets and
// AuthMiddleware are optional; without them the admin API is not mounted.
// History is only available with the postgres backend.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	History        *handlers.HistoryHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Root)
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	if cfg.Tickets == nil || cfg.AuthMiddleware == nil {
		return
	}
	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)
	admin.Get("/tickets", cfg.Tickets.ListTickets)
	admin.Get("/tickets/:userId", cfg.Tickets.GetTicket)
	if cfg.History != nil {
		admin.Get("/users/:userId/history", cfg.History.ListHistory)
	}
}
