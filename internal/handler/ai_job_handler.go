package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

// AIJobHandler queues question generation jobs and reports their progress.
type AIJobHandler struct {
	service service.AIJobService
	logger  zerolog.Logger
}

// NewAIJobHandler constructs an AI job handler.
func NewAIJobHandler(service service.AIJobService, logger zerolog.Logger) *AIJobHandler {
	return &AIJobHandler{
		service: service,
		logger:  logger.With().Str("component", "ai_job_handler").Logger(),
	}
}

// Register wires AI job routes.
func (h *AIJobHandler) Register(router fiber.Router) {
	router.Post("", h.enqueue)
	router.Get("/:id", h.get)
}

func (h *AIJobHandler) enqueue(c *fiber.Ctx) error {
	var payload dto.AIJobCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	job, err := h.service.Enqueue(c.UserContext(), payload, staffIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "enqueue ai job")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "ai job queued", job)
}

func (h *AIJobHandler) get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "get ai job")
	}
	return utils.SendSuccess(c, "ai job retrieved", job)
}
