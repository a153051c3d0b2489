package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

// AdminWebhookController exposes the webhook event log to administrators.
type AdminWebhookController struct {
	service *webhook.Service
}

func NewAdminWebhookController(service *webhook.Service) *AdminWebhookController {
	return &AdminWebhookController{service: service}
}

// Global admin webhook controller instance
var adminWebhookController *AdminWebhookController

// InitializeAdminWebhookController sets the global admin webhook controller
func InitializeAdminWebhookController(service *webhook.Service) {
	adminWebhookController = NewAdminWebhookController(service)
}

// GetAdminWebhookController returns the global admin webhook controller
func GetAdminWebhookController() *AdminWebhookController {
	if adminWebhookController == nil {
		InitializeAdminWebhookController(GetWebhookController().service)
	}
	return adminWebhookController
}

// HandleAdminWebhookEvents - Adapter for event listing
func HandleAdminWebhookEvents(c *fiber.Ctx) error {
	return GetAdminWebhookController().HandleList(c)
}

// HandleAdminWebhookEvent - Adapter for a single event
func HandleAdminWebhookEvent(c *fiber.Ctx) error {
	return GetAdminWebhookController().HandleGet(c)
}

// HandleAdminWebhookReplay - Adapter for replaying an event
func HandleAdminWebhookReplay(c *fiber.Ctx) error {
	return GetAdminWebhookController().HandleReplay(c)
}

// HandleList lists events, newest first.
func (ac *AdminWebhookController) HandleList(c *fiber.Ctx) error {
	filter := webhook.EventFilter{
		Source: strings.ToUpper(strings.TrimSpace(c.Query("source"))),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}
	if raw := strings.TrimSpace(c.Query("processed")); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "processed must be a boolean"})
		}
		filter.Processed = &processed
	}
	filter = filter.Normalized()

	events, total, err := ac.service.Repository().ListWebhookEvents(c.UserContext(), filter)
	if err != nil {
		log.Errorf("[AdminWebhookController] Failed to list events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load webhook events"})
	}

	data := make([]fiber.Map, 0, len(events))
	for i := range events {
		data = append(data, eventResponse(&events[i], false))
	}
	return c.JSON(fiber.Map{
		"data":  data,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// HandleGet returns one event including its raw payload.
func (ac *AdminWebhookController) HandleGet(c *fiber.Ctx) error {
	id, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid event id"})
	}

	event, err := ac.service.Repository().GetWebhookEvent(c.UserContext(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Webhook event not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load webhook event"})
	}
	return c.JSON(eventResponse(event, true))
}

// HandleReplay re-runs an unfinalized event.
func (ac *AdminWebhookController) HandleReplay(c *fiber.Ctx) error {
	id, ok := eventIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid event id"})
	}

	res, err := ac.service.Replay(c.UserContext(), id)
	switch {
	case errors.Is(err, webhook.ErrEventNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, webhook.ErrEventAlreadyFinalized):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, webhook.ErrInvalidSignature):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unprocessable_entity", "message": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}

	handled := ""
	if res.Handled != nil {
		handled = res.Handled.Error()
	}
	return c.JSON(fiber.Map{
		"success":             true,
		"eventId":             res.EventID,
		"source":              res.Source,
		"action":              res.Action,
		"message":             res.Message,
		"error":               handled,
		"userId":              res.UserID,
		"userCreated":         res.UserCreated,
		"subscriptionCreated": res.SubscriptionCreated,
		"cancelled":           res.CancelledCount,
	})
}

func eventIDParam(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func eventResponse(e *models.WebhookEvent, withPayload bool) fiber.Map {
	out := fiber.Map{
		"id":           e.ID,
		"delivery_id":  e.DeliveryID,
		"source":       e.Source,
		"event_type":   e.EventType,
		"processed":    e.Processed,
		"error":        e.ErrorMessage(),
		"attempts":     e.Attempts,
		"created_at":   formatTimePtr(&e.CreatedAt),
		"processed_at": formatTimePtr(e.ProcessedAt),
		"archived_at":  formatTimePtr(e.ArchivedAt),
	}
	if withPayload {
		out["payload"] = e.Payload
	}
	return out
}
