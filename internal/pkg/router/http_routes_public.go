package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/Sermonario/app/controllers"
	"github.com/ManuelReschke/Sermonario/internal/pkg/cache"
	"github.com/ManuelReschke/Sermonario/internal/pkg/constants"
	"github.com/ManuelReschke/Sermonario/internal/pkg/database"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.HealthRoute, handleHealth)

	if h.deps.Gatherer != nil {
		app.Get(constants.MetricsRoute, adaptor.HTTPHandler(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Provider webhooks. The static checkout path must be registered before
	// the :provider wildcard.
	app.Post(constants.CheckoutWebhookRoute, controllers.HandleGGCheckoutWebhook)
	app.Post(constants.WebhooksRoute, controllers.HandleGenericWebhook)
	app.Post(constants.ProviderWebhookRoute, controllers.HandleGenericWebhook)
}

func handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.Map{"status": "ok", "database": "ok"}
	code := fiber.StatusOK

	// database.GetDB would block on reconnect retries; report the current handle.
	db := database.DB
	if db == nil {
		status["database"] = "unavailable"
		status["status"] = "degraded"
		code = fiber.StatusServiceUnavailable
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unreachable"
		status["status"] = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	if cache.Enabled() {
		status["cache"] = "ok"
		if err := cache.Ping(ctx); err != nil {
			// Redis only backs locks and rate limits; storage constraints still hold.
			status["cache"] = "unreachable"
		}
	}

	return c.Status(code).JSON(status)
}
