package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the shared services handed to the routers.
type Dependencies struct {
	Webhooks *webhook.Service
	Verifier credentials.Verifier
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter initializes the controllers the API routes reuse.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
