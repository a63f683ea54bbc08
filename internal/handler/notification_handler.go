package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

// NotificationHandler lets staff queue ad-hoc webhook events and inspect delivery state.
type NotificationHandler struct {
	outbox service.NotificationOutbox
	logger zerolog.Logger
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(outbox service.NotificationOutbox, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		outbox: outbox,
		logger: logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register wires notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:id", h.get)
}

func (h *NotificationHandler) create(c *fiber.Ctx) error {
	var payload dto.NotificationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	entry, err := h.outbox.Create(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create notification")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "notification queued", entry)
}

func (h *NotificationHandler) get(c *fiber.Ctx) error {
	entry, err := h.outbox.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "get notification")
	}
	return utils.SendSuccess(c, "notification retrieved", entry)
}
