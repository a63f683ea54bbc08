package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

// TestHandler manages test definitions.
type TestHandler struct {
	service service.TestService
	logger  zerolog.Logger
}

// NewTestHandler constructs a test handler.
func NewTestHandler(service service.TestService, logger zerolog.Logger) *TestHandler {
	return &TestHandler{
		service: service,
		logger:  logger.With().Str("component", "test_handler").Logger(),
	}
}

// Register wires test routes.
func (h *TestHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
}

func (h *TestHandler) create(c *fiber.Ctx) error {
	var payload dto.TestCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.Create(c.UserContext(), payload, staffIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "create test")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test created", result)
}

func (h *TestHandler) list(c *fiber.Ctx) error {
	var query dto.TestListRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "invalid query parameters")
	}

	result, err := h.service.List(c.UserContext(), query)
	if err != nil {
		return respondError(c, h.logger, err, "list tests")
	}
	return utils.OK(c, result.Items, "tests retrieved", result.Pagination)
}

func (h *TestHandler) get(c *fiber.Ctx) error {
	result, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "get test")
	}
	return utils.SendSuccess(c, "test retrieved", result)
}
