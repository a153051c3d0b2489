package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Sermonario/app/controllers"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize webhook controllers with the shared service
	controllers.InitializeWebhookController(h.deps.Webhooks)
	controllers.InitializeAdminWebhookController(h.deps.Webhooks)

	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
