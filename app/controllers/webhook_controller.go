package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Sermonario/internal/pkg/database"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

// ProviderHeader names the source family explicitly on the generic endpoint.
const ProviderHeader = "X-Webhook-Provider"

// WebhookController receives purchase notifications from payment providers.
type WebhookController struct {
	service *webhook.Service
}

func NewWebhookController(service *webhook.Service) *WebhookController {
	return &WebhookController{service: service}
}

// Global webhook controller instance
var webhookController *WebhookController

// InitializeWebhookController sets the global webhook controller
func InitializeWebhookController(service *webhook.Service) {
	webhookController = NewWebhookController(service)
}

// GetWebhookController returns the global webhook controller, falling back to a
// service built on the global database.
func GetWebhookController() *WebhookController {
	if webhookController == nil {
		cfg, err := webhook.LoadConfig()
		if err != nil {
			log.Warnf("[WebhookController] Invalid webhook config, using defaults: %v", err)
			cfg = webhook.DefaultConfig()
		}
		InitializeWebhookController(webhook.NewServiceFromDB(database.GetDB(), webhook.WithConfig(cfg)))
	}
	return webhookController
}

// HandleGGCheckoutWebhook - Adapter for the dedicated checkout endpoint
func HandleGGCheckoutWebhook(c *fiber.Ctx) error {
	return GetWebhookController().HandleGGCheckout(c)
}

// HandleGenericWebhook - Adapter for the generic and per-provider endpoints
func HandleGenericWebhook(c *fiber.Ctx) error {
	return GetWebhookController().HandleGeneric(c)
}

// HandleGGCheckout processes a delivery from the dedicated checkout.
func (wc *WebhookController) HandleGGCheckout(c *fiber.Ctx) error {
	res, err := wc.service.Process(c.UserContext(), webhook.ProcessInput{
		Body:      copyBody(c),
		Provider:  webhook.SourceGGCheckout,
		Signature: c.Get(webhook.SignatureHeader),
	})
	if errors.Is(err, webhook.ErrInvalidSignature) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Erro interno ao processar webhook: " + err.Error(),
		})
	}
	if res.Handled != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   res.Handled.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":             true,
		"message":             res.Message,
		"userId":              res.UserID,
		"userCreated":         res.UserCreated,
		"subscriptionCreated": res.SubscriptionCreated,
	})
}

// HandleGeneric processes a delivery whose family is named by the path, the
// provider header, or inferred from the payload.
func (wc *WebhookController) HandleGeneric(c *fiber.Ctx) error {
	var provider webhook.SourceFamily
	if name := c.Params("provider"); name != "" {
		family, ok := webhook.ParseSourceFamily(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown provider: " + name})
		}
		provider = family
	} else if name := c.Get(ProviderHeader); name != "" {
		if family, ok := webhook.ParseSourceFamily(name); ok {
			provider = family
		} else {
			log.Warnf("[WebhookController] Ignoring unknown %s %q", ProviderHeader, name)
		}
	}

	res, err := wc.service.Process(c.UserContext(), webhook.ProcessInput{
		Body:      copyBody(c),
		Provider:  provider,
		Signature: c.Get(webhook.SignatureHeader),
	})
	if errors.Is(err, webhook.ErrInvalidSignature) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if res.Message == "" {
		return c.JSON(fiber.Map{"success": true})
	}
	return c.JSON(fiber.Map{"success": true, "message": res.Message})
}

// copyBody detaches the request body from fasthttp's reused buffer.
func copyBody(c *fiber.Ctx) []byte {
	return append([]byte(nil), c.Body()...)
}
