package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

func get(t *testing.T, app *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp)
}

func TestAdminWebhookList(t *testing.T) {
	app, _, _ := newWebhookApp(t)
	post(t, app, "/webhooks/ggcheckout", `{"Email":"a@x.com"}`, nil)
	post(t, app, "/webhooks/ggcheckout", `{"Nome":"no email"}`, nil)
	post(t, app, "/webhooks", `oops`, nil)

	status, body := get(t, app, "/admin/webhook-events")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 3, body["total"])
	data := body["data"].([]interface{})
	require.Len(t, data, 3)
	first := data[0].(map[string]interface{})
	assert.NotContains(t, first, "payload")

	status, body = get(t, app, "/admin/webhook-events?processed=false")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = get(t, app, "/admin/webhook-events?source=ggcheckout&limit=1")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["limit"])
	assert.Len(t, body["data"].([]interface{}), 1)

	status, _ = get(t, app, "/admin/webhook-events?processed=maybe")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminWebhookGet(t *testing.T) {
	app, repo, _ := newWebhookApp(t)
	post(t, app, "/webhooks/ggcheckout", `{"Email":"a@x.com"}`, nil)
	id := repo.Events()[0].ID

	status, body := get(t, app, fmt.Sprintf("/admin/webhook-events/%d", id))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, `{"Email":"a@x.com"}`, body["payload"])
	assert.Equal(t, true, body["processed"])
	assert.NotNil(t, body["processed_at"])

	status, _ = get(t, app, "/admin/webhook-events/9999")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = get(t, app, "/admin/webhook-events/abc")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminWebhookReplay(t *testing.T) {
	app, repo, _ := newWebhookApp(t)

	repo.FailOn("CreateUser", errors.New("db down"))
	status, _ := post(t, app, "/webhooks/ggcheckout", `{"Email":"r@x.com","Nome":"R"}`, nil)
	require.Equal(t, fiber.StatusInternalServerError, status)
	event := repo.Events()[0]
	require.False(t, event.IsFinalized())
	assert.Equal(t, "db down", event.ErrorMessage())

	repo.FailOn("CreateUser", nil)
	status, body := post(t, app, fmt.Sprintf("/admin/webhook-events/%d/replay", event.ID), "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["userCreated"])
	assert.Equal(t, true, body["subscriptionCreated"])
	assert.Len(t, repo.Users(), 1)

	status, body = post(t, app, fmt.Sprintf("/admin/webhook-events/%d/replay", event.ID), "", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "conflict", body["error"])

	status, _ = post(t, app, "/admin/webhook-events/4242/replay", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminWebhookReplay_UnverifiedEvent(t *testing.T) {
	cfg := webhook.DefaultConfig()
	cfg.Secrets = map[webhook.SourceFamily]string{webhook.SourceGGCheckout: "s3cret"}
	app, repo, _ := newWebhookApp(t, webhook.WithConfig(cfg))

	repo.FailOn("MarkWebhookAttempt", errors.New("db down"))
	status, _ := post(t, app, "/webhooks/ggcheckout", `{"Email":"forged@x.com"}`, nil)
	require.Equal(t, fiber.StatusInternalServerError, status)
	repo.FailOn("MarkWebhookAttempt", nil)
	event := repo.Events()[0]
	require.False(t, event.IsFinalized())

	status, body := post(t, app, fmt.Sprintf("/admin/webhook-events/%d/replay", event.ID), "", nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "unprocessable_entity", body["error"])
	assert.Empty(t, repo.Users())
	assert.True(t, repo.Events()[0].IsFinalized())
}
