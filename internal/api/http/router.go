package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	// Prefix mounts the ticket API, e.g. /api/v1/support.
	Prefix         string
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := app.Group(cfg.Prefix, cfg.AuthMiddleware.Handle, auth.RequireActor())
	staff := auth.RequireStaff()

	api.Get("/tickets", staff, cfg.Tickets.ListTickets)
	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Patch("/tickets/:id", staff, cfg.Tickets.UpdateTicket)
	api.Post("/tickets/:id/assign", staff, cfg.Tickets.AssignTicket)
	api.Post("/tickets/:id/reply", cfg.Tickets.Reply)
	api.Post("/tickets/:id/escalate", staff, cfg.Tickets.EscalateTicket)
	api.Post("/tickets/:id/rate", cfg.Tickets.RateTicket)
	api.Get("/tickets/:id/history", staff, cfg.Tickets.History)
	api.Get("/stats", staff, cfg.Tickets.Stats)
	api.Get("/my-tickets", cfg.Tickets.MyTickets)
}
