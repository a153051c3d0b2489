package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/Sermonario/internal/pkg/constants"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	// fiber monitor, only with explicit credentials
	user := env.GetEnv("METRICS_USER", "")
	password := env.GetEnv("METRICS_PASSWORD", "")
	if user == "" || password == "" {
		log.Info("[Router] METRICS_USER or METRICS_PASSWORD not set, monitor disabled")
		return
	}
	app.Get(constants.MonitorRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{user: password},
	}), monitor.New(monitor.Config{Title: "Sermonario Monitor"}))
}
