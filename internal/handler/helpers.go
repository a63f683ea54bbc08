package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skilltest-api/internal/middleware"
	"github.com/noah-isme/skilltest-api/internal/service"
	"github.com/noah-isme/skilltest-api/internal/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings translates service sentinels into HTTP statuses and stable codes.
var errorMappings = []errorMapping{
	{service.ErrAttemptNotFound, fiber.StatusNotFound, "not_found"},
	{service.ErrTestNotFound, fiber.StatusNotFound, "not_found"},
	{service.ErrJobNotFound, fiber.StatusNotFound, "not_found"},
	{service.ErrNotificationNotFound, fiber.StatusNotFound, "not_found"},
	{service.ErrAnswerNotFound, fiber.StatusNotFound, "not_found"},
	{service.ErrTestExpired, fiber.StatusForbidden, "test_expired"},
	{service.ErrAlreadyCompleted, fiber.StatusConflict, "already_completed"},
	{service.ErrAttemptTerminated, fiber.StatusConflict, "attempt_terminated"},
	{service.ErrNotStarted, fiber.StatusConflict, "not_started"},
	{service.ErrConcurrentUpdate, fiber.StatusConflict, "conflict"},
	{service.ErrPendingInviteExists, fiber.StatusConflict, "pending_invite_exists"},
	{service.ErrNotPending, fiber.StatusConflict, "not_pending"},
	{service.ErrNotGradable, fiber.StatusConflict, "not_gradable"},
	{service.ErrTestInactive, fiber.StatusUnprocessableEntity, "test_inactive"},
	{service.ErrUsePresentationSubmit, fiber.StatusBadRequest, "use_presentation_submit"},
	{service.ErrNotPresentation, fiber.StatusBadRequest, "not_presentation"},
	{service.ErrGradeRequired, fiber.StatusBadRequest, "validation_error"},
	{service.ErrInvalidURL, fiber.StatusBadRequest, "invalid_url"},
	{service.ErrInvalidURLScheme, fiber.StatusBadRequest, "invalid_url_scheme"},
	{service.ErrInvalidFileType, fiber.StatusBadRequest, "invalid_file_type"},
	{service.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge, "file_too_large"},
	{service.ErrEmptySubmission, fiber.StatusBadRequest, "empty_submission"},
	{service.ErrInvalidQuestionSet, fiber.StatusBadRequest, "validation_error"},
	{service.ErrInvalidThemes, fiber.StatusBadRequest, "validation_error"},
	{service.ErrNoWebhookTarget, fiber.StatusUnprocessableEntity, "no_webhook_target"},
}

// respondError writes the error envelope for err. Unknown errors are logged
// and reported as internal_error without leaking details.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	if isValidationError(err) {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return utils.SendErrorCode(c, mapping.status, mapping.code, mapping.target.Error())
		}
	}

	requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("internal server error")
	return utils.SendErrorCode(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
}

func invalidBody(c *fiber.Ctx) error {
	return utils.SendErrorCode(c, fiber.StatusBadRequest, "validation_error", "invalid request body")
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func staffIDFromContext(c *fiber.Ctx) string {
	return middleware.UserID(c)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}
