package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ManuelReschke/Sermonario/internal/pkg/archive"
	"github.com/ManuelReschke/Sermonario/internal/pkg/cache"
	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
	"github.com/ManuelReschke/Sermonario/internal/pkg/database"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
	"github.com/ManuelReschke/Sermonario/internal/pkg/lock"
	"github.com/ManuelReschke/Sermonario/internal/pkg/mail"
	"github.com/ManuelReschke/Sermonario/internal/pkg/metrics/prom"
	"github.com/ManuelReschke/Sermonario/internal/pkg/replay"
	"github.com/ManuelReschke/Sermonario/internal/pkg/router"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

func main() {
	app, cleanup := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Main] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down")
	if err := app.ShutdownWithTimeout(20 * time.Second); err != nil {
		log.Errorf("[Main] Server shutdown: %v", err)
	}
	cleanup()
}

// NewApplication wires the service and returns the app plus a cleanup func
// that stops background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()

	var locker lock.Locker = lock.Noop{}
	if cache.Enabled() {
		cache.SetupCache()
		locker = lock.NewRedisLocker(cache.GetClient(), "webhook:user:")
	} else {
		log.Warn("[Main] CACHE_HOST not set, per-user locking relies on storage constraints only")
	}

	cfg, err := webhook.LoadConfig()
	if err != nil {
		log.Fatalf("[Main] Invalid webhook config: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []webhook.Option{
		webhook.WithConfig(cfg),
		webhook.WithLocker(locker),
		webhook.WithMetrics(prom.NewMetrics(reg, "sermonario")),
	}
	var notifier *mail.AccountNotifier
	if mail.Enabled() {
		notifier = mail.NewAccountNotifier(env.GetEnv("APP_LOGIN_URL", "http://localhost:4000/login"))
		notifier.Start()
		opts = append(opts, webhook.WithNotifier(notifier))
	}
	svc := webhook.NewServiceFromDB(database.GetDB(), opts...)

	jwtSecret := env.GetEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Warn("[Main] JWT_SECRET not set, admin API rejects every token")
	}

	sweeper, err := newSweeper(svc)
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	if err := sweeper.Start(); err != nil {
		log.Fatalf("[Main] %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Sermonario",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: findBasePath() + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Webhooks: svc,
		Verifier: credentials.NewJWTVerifier(jwtSecret),
		Gatherer: reg,
	})

	cleanup := func() {
		sweeper.Stop()
		if notifier != nil {
			notifier.Stop()
		}
		if cache.Enabled() {
			if err := cache.Close(); err != nil {
				log.Warnf("[Main] Cache close: %v", err)
			}
		}
	}
	return app, cleanup
}

func newSweeper(svc *webhook.Service) (*replay.Sweeper, error) {
	cfg, err := replay.LoadConfig()
	if err != nil {
		return nil, err
	}

	archiveCfg, err := archive.LoadConfig()
	if err != nil {
		return nil, err
	}
	if !archiveCfg.IsEnabled() {
		return replay.New(svc, nil, cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := archive.NewClient(ctx, archiveCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	return replay.New(svc, client, cfg)
}

// findBasePath locates the project root when started from cmd/sermonario.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return "./"
}
