package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Sermonario/internal/pkg/credentials"
	"github.com/ManuelReschke/Sermonario/internal/pkg/metrics/prom"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook/webhooktest"
)

type stubHasher struct{}

func (stubHasher) Hash(p string) (string, error) { return "x" + p, nil }

func newTestApp(t *testing.T) (*fiber.App, *webhooktest.Repository, *credentials.JWTVerifier) {
	t.Helper()
	t.Setenv("CACHE_HOST", "")

	reg := prometheus.NewRegistry()
	repo := webhooktest.New()
	svc := webhook.NewService(repo,
		webhook.WithHasher(stubHasher{}),
		webhook.WithMetrics(prom.NewMetrics(reg, "sermonario")),
	)
	verifier := credentials.NewJWTVerifier("router-secret")

	app := fiber.New()
	InstallRouter(app, Dependencies{Webhooks: svc, Verifier: verifier, Gatherer: reg})
	return app, repo, verifier
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestWebhookRoutes(t *testing.T) {
	app, repo, _ := newTestApp(t)

	for _, path := range []string{"/webhooks/ggcheckout", "/api/webhooks/ggcheckout"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"Email":"r@x.com"}`))
		code, _ := do(t, app, req)
		assert.Equal(t, fiber.StatusOK, code, path)
	}
	for _, path := range []string{"/webhooks", "/api/webhooks", "/webhooks/gcheckout"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"waiting","email":"r@x.com"}`))
		code, _ := do(t, app, req)
		assert.Equal(t, fiber.StatusOK, code, path)
	}

	assert.Len(t, repo.Events(), 5)
	assert.Len(t, repo.Users(), 1)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	app, _, verifier := newTestApp(t)

	code, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhook-events", nil))
	assert.Equal(t, fiber.StatusUnauthorized, code)

	token, err := verifier.Issue(1, "admin@x.com", "ADMIN", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhook-events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	code, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, `"total":0`)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{"status":"waiting","email":"m@x.com"}`))
	do(t, app, req)

	code, body := do(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, "sermonario_webhook_events_total")
}

func TestHealthWithoutDatabase(t *testing.T) {
	app, _, _ := newTestApp(t)

	code, body := do(t, app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Contains(t, body, `"database":"unavailable"`)
}

func TestMonitorRequiresConfiguredCredentials(t *testing.T) {
	t.Run("disabled without credentials", func(t *testing.T) {
		t.Setenv("METRICS_USER", "")
		t.Setenv("METRICS_PASSWORD", "")
		app, _, _ := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/monitor", nil)
		req.SetBasicAuth("admin", "test")
		code, _ := do(t, app, req)
		assert.Equal(t, fiber.StatusNotFound, code)
	})

	t.Run("enabled with credentials", func(t *testing.T) {
		t.Setenv("METRICS_USER", "ops")
		t.Setenv("METRICS_PASSWORD", "s3cret")
		app, _, _ := newTestApp(t)

		code, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/monitor", nil))
		assert.Equal(t, fiber.StatusUnauthorized, code)

		req := httptest.NewRequest(http.MethodGet, "/monitor", nil)
		req.SetBasicAuth("ops", "s3cret")
		code, _ = do(t, app, req)
		assert.Equal(t, fiber.StatusOK, code)
	})
}
