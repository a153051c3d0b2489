package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/Sermonario/app/controllers"
	"github.com/ManuelReschke/Sermonario/internal/pkg/cache"
	"github.com/ManuelReschke/Sermonario/internal/pkg/constants"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
	"github.com/ManuelReschke/Sermonario/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Legacy webhook aliases. Providers retry on 429, so these stay unlimited.
	api.Post(constants.CheckoutWebhookRoute, controllers.HandleGGCheckoutWebhook)
	api.Post(constants.WebhooksRoute, controllers.HandleGenericWebhook)

	// API v1 admin routes
	v1 := api.Group("/v1")
	admin := v1.Group("/admin", adminLimiter(), middleware.RequireAdminToken(h.deps.Verifier))
	admin.Get(constants.AdminWebhookEventsAPI, controllers.HandleAdminWebhookEvents)
	admin.Get(constants.AdminWebhookEventsAPI+"/:id", controllers.HandleAdminWebhookEvent)
	admin.Post(constants.AdminWebhookEventsAPI+"/:id/replay", controllers.HandleAdminWebhookReplay)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

// adminLimiter shares its counters through Redis when a cache is configured so
// limits hold across instances.
func adminLimiter() fiber.Handler {
	cfg := limiter.Config{
		Max:        env.GetInt("ADMIN_RATE_LIMIT", 60),
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}
	if cache.Enabled() {
		// Separate database from the cache client
		cfg.Storage = redis.New(redis.Config{
			Host:     cache.Host(),
			Port:     cache.Port(),
			Password: cache.Password(),
			Database: cache.Database() + 1,
			Reset:    false,
		})
		log.Info("[Router] Admin rate limiter uses Redis storage")
	}
	return limiter.New(cfg)
}
