package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

// AttemptHandler exposes invitation, review and grading endpoints to staff.
type AttemptHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewAttemptHandler constructs the staff attempt handler.
func NewAttemptHandler(service service.AttemptService, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: service,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// RegisterInvites wires the invitation route.
func (h *AttemptHandler) RegisterInvites(router fiber.Router) {
	router.Post("", h.invite)
}

// Register wires attempt routes. Static segments are registered before /:id.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/needs-review", h.needsReview)
	router.Get("/stats", h.stats)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
	router.Post("/:id/grade-answer", h.gradeAnswer)
	router.Post("/:id/grade", h.gradePresentation)
}

func (h *AttemptHandler) invite(c *fiber.Ctx) error {
	var payload dto.InviteRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.CreateInvite(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create invite")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "invitation created", result)
}

func (h *AttemptHandler) list(c *fiber.Ctx) error {
	var query dto.AttemptListRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "invalid query parameters")
	}

	result, err := h.service.List(c.UserContext(), query)
	if err != nil {
		return respondError(c, h.logger, err, "list attempts")
	}
	return utils.OK(c, result.Items, "attempts retrieved", result.Pagination)
}

func (h *AttemptHandler) needsReview(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "page must be a number")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "page_size must be a number")
	}

	result, err := h.service.ListNeedsReview(c.UserContext(), page, pageSize)
	if err != nil {
		return respondError(c, h.logger, err, "list needs review")
	}
	return utils.OK(c, result.Items, "attempts awaiting review", result.Pagination)
}

func (h *AttemptHandler) stats(c *fiber.Ctx) error {
	result, err := h.service.StatusDistribution(c.UserContext(), strings.TrimSpace(c.Query("test_id")))
	if err != nil {
		return respondError(c, h.logger, err, "attempt stats")
	}
	return utils.SendSuccess(c, "attempt statistics", result)
}

func (h *AttemptHandler) get(c *fiber.Ctx) error {
	result, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "get attempt")
	}
	return utils.SendSuccess(c, "attempt retrieved", result)
}

func (h *AttemptHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "delete attempt")
	}
	return utils.SendSuccess(c, "attempt deleted", nil)
}

func (h *AttemptHandler) gradeAnswer(c *fiber.Ctx) error {
	var payload dto.GradeAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.GradeAnswer(c.UserContext(), c.Params("id"), payload, staffIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "grade answer")
	}
	return utils.SendSuccess(c, "answer graded", result)
}

func (h *AttemptHandler) gradePresentation(c *fiber.Ctx) error {
	var payload dto.GradePresentationRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.GradePresentation(c.UserContext(), c.Params("id"), payload, staffIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "grade presentation")
	}
	return utils.SendSuccess(c, "presentation graded", result)
}
