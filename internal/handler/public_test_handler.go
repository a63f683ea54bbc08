package handler

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

// PublicTestHandler serves the candidate-facing endpoints. The access token
// in the path is the only credential.
type PublicTestHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewPublicTestHandler constructs the candidate handler.
func NewPublicTestHandler(service service.AttemptService, logger zerolog.Logger) *PublicTestHandler {
	return &PublicTestHandler{
		service: service,
		logger:  logger.With().Str("component", "public_test_handler").Logger(),
	}
}

// Register wires routes under a group whose prefix ends with /:token.
func (h *PublicTestHandler) Register(router fiber.Router) {
	router.Get("", h.view)
	router.Post("/start", h.start)
	router.Patch("/answer", h.saveAnswer)
	router.Post("/submit", h.submit)
	router.Post("/submit-presentation", h.submitPresentation)
	router.Get("/status", h.status)
	router.Post("/heartbeat", h.heartbeat)
	router.Post("/report-violation", h.reportViolation)
}

func token(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("token"))
}

func (h *PublicTestHandler) view(c *fiber.Ctx) error {
	view, err := h.service.GetByToken(c.UserContext(), token(c))
	if err != nil {
		return respondError(c, h.logger, err, "view test")
	}
	return utils.SendSuccess(c, "test retrieved", view)
}

func (h *PublicTestHandler) start(c *fiber.Ctx) error {
	result, err := h.service.Start(c.UserContext(), token(c))
	if err != nil {
		return respondError(c, h.logger, err, "start test")
	}
	return utils.SendSuccess(c, "test started", result)
}

func (h *PublicTestHandler) saveAnswer(c *fiber.Ctx) error {
	var payload dto.SaveAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.SaveAnswer(c.UserContext(), token(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "save answer")
	}
	return utils.SendSuccess(c, "answer saved", result)
}

func (h *PublicTestHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return invalidBody(c)
		}
	}

	result, err := h.service.Submit(c.UserContext(), token(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "submit test")
	}
	return utils.SendSuccess(c, "test submitted", result)
}

func (h *PublicTestHandler) submitPresentation(c *fiber.Ctx) error {
	var payload dto.PresentationSubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return invalidBody(c)
		}
	}

	var file *multipart.FileHeader
	if header, err := c.FormFile("file"); err == nil {
		file = header
	} else if !errors.Is(err, fasthttp.ErrMissingFile) && !errors.Is(err, fasthttp.ErrNoMultipartForm) {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "invalid multipart form")
	}

	result, err := h.service.SubmitPresentation(c.UserContext(), token(c), payload, file)
	if err != nil {
		return respondError(c, h.logger, err, "submit presentation")
	}
	return utils.SendSuccess(c, "presentation submitted", result)
}

func (h *PublicTestHandler) status(c *fiber.Ctx) error {
	result, err := h.service.GetStatus(c.UserContext(), token(c))
	if err != nil {
		return respondError(c, h.logger, err, "attempt status")
	}
	return utils.SendSuccess(c, "status retrieved", result)
}

func (h *PublicTestHandler) heartbeat(c *fiber.Ctx) error {
	result, err := h.service.Heartbeat(c.UserContext(), token(c))
	if err != nil {
		return respondError(c, h.logger, err, "heartbeat")
	}
	return utils.SendSuccess(c, "heartbeat recorded", result)
}

func (h *PublicTestHandler) reportViolation(c *fiber.Ctx) error {
	var payload dto.ViolationRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.ReportViolation(c.UserContext(), token(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "report violation")
	}
	return utils.SendSuccess(c, "violation recorded", result)
}
