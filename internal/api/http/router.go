package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-relay/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Relay  *handlers.RelayHandler
}

// RegisterRoutes wires HTTP routes. The relay routes are path-scoped by
// credential: the token itself names the ticket.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/:token", cfg.Relay.GetTicket)
	app.Post("/:token/message", cfg.Relay.SendMessage)
	app.Get("/:token/poll/:watermark", cfg.Relay.Poll)
	app.Get("/:token/close", cfg.Relay.CloseTicket)
	app.Get("/:token/timestamp", cfg.Relay.Timestamp)
}
