package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/grading"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

// Attempt feed event types.
const (
	FeedAttemptInvited   = "attempt.invited"
	FeedAttemptStarted   = "attempt.started"
	FeedAttemptSubmitted = "attempt.submitted"
	FeedAttemptEscaped   = "attempt.escaped"
	FeedAttemptTimedOut  = "attempt.timed_out"
	FeedAttemptGraded    = "attempt.graded"
	FeedAttemptDeleted   = "attempt.deleted"
)

// AttemptService drives an attempt through its lifecycle on behalf of the
// candidate (token-addressed operations) and staff (id-addressed operations).
type AttemptService interface {
	CreateInvite(ctx context.Context, payload dto.InviteRequest) (dto.InviteResponse, error)
	GetByToken(ctx context.Context, token string) (dto.CandidateAttemptView, error)
	Start(ctx context.Context, token string) (dto.StartResponse, error)
	SaveAnswer(ctx context.Context, token string, payload dto.SaveAnswerRequest) (dto.SaveAnswerResponse, error)
	ReportViolation(ctx context.Context, token string, payload dto.ViolationRequest) (dto.ViolationResponse, error)
	Submit(ctx context.Context, token string, payload dto.SubmitRequest) (dto.SubmitResponse, error)
	SubmitPresentation(ctx context.Context, token string, payload dto.PresentationSubmitRequest, file *multipart.FileHeader) (dto.SubmitResponse, error)
	Heartbeat(ctx context.Context, token string) (dto.HeartbeatResponse, error)
	GetStatus(ctx context.Context, token string) (dto.StatusResponse, error)

	Get(ctx context.Context, id string) (dto.AttemptResponse, error)
	List(ctx context.Context, query dto.AttemptListRequest) (dto.AttemptListResponse, error)
	ListNeedsReview(ctx context.Context, page, pageSize int) (dto.AttemptListResponse, error)
	StatusDistribution(ctx context.Context, testID string) (dto.StatusDistributionResponse, error)
	Delete(ctx context.Context, id string) error
	GradeAnswer(ctx context.Context, id string, payload dto.GradeAnswerRequest, grader string) (dto.AttemptResponse, error)
	GradePresentation(ctx context.Context, id string, payload dto.GradePresentationRequest, grader string) (dto.AttemptResponse, error)
}

// AttemptServiceConfig carries the lifecycle tunables.
type AttemptServiceConfig struct {
	ViolationLimit     int
	DefaultExpiryHours int
}

type attemptService struct {
	attempts  repository.AttemptRepository
	tests     repository.TestRepository
	outbox    NotificationOutbox
	feed      AttemptFeed
	uploads   UploadService
	cfg       AttemptServiceConfig
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAttemptService constructs the attempt lifecycle service. feed and
// uploads may be nil.
func NewAttemptService(
	attempts repository.AttemptRepository,
	tests repository.TestRepository,
	outbox NotificationOutbox,
	feed AttemptFeed,
	uploads UploadService,
	cfg AttemptServiceConfig,
	validate *validator.Validate,
	logger zerolog.Logger,
) AttemptService {
	if cfg.ViolationLimit <= 0 {
		cfg.ViolationLimit = 2
	}
	if cfg.DefaultExpiryHours <= 0 {
		cfg.DefaultExpiryHours = 72
	}
	return &attemptService{
		attempts:  attempts,
		tests:     tests,
		outbox:    outbox,
		feed:      feed,
		uploads:   uploads,
		cfg:       cfg,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "attempt_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/skilltest-api/internal/service/attempt"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *attemptService) CreateInvite(ctx context.Context, payload dto.InviteRequest) (dto.InviteResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.InviteResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.create_invite", trace.WithAttributes(
		attribute.String("attempt.test_id", payload.TestID),
	))
	defer span.End()

	test, err := s.tests.GetByID(ctx, payload.TestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.InviteResponse{}, ErrTestNotFound
		}
		return dto.InviteResponse{}, recordSpanError(span, err)
	}
	if !test.IsActive {
		return dto.InviteResponse{}, ErrTestInactive
	}

	snapshot, err := buildSnapshot(test)
	if err != nil {
		return dto.InviteResponse{}, recordSpanError(span, err)
	}

	token, err := generateAccessToken()
	if err != nil {
		return dto.InviteResponse{}, recordSpanError(span, err)
	}

	hours := payload.ExpiresInHours
	if hours <= 0 {
		hours = s.cfg.DefaultExpiryHours
	}

	now := s.now()
	attempt := models.Attempt{
		TestID:              test.ID,
		CandidateName:       strings.TrimSpace(payload.CandidateName),
		CandidateEmail:      normalizeEmail(payload.CandidateEmail),
		CandidateExternalID: trimmedOrNil(payload.CandidateExternalID),
		CandidatePhone:      trimmedOrNil(payload.CandidatePhone),
		CandidateChatID:     payload.CandidateChatID,
		AccessToken:         token,
		ExpiresAt:           now.Add(time.Duration(hours) * time.Hour),
		QuestionsSnapshot:   snapshot,
		Status:              models.AttemptStatusPending,
		IsPresentation:      test.IsPresentation(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if len(payload.Metadata) > 0 {
		attempt.Metadata = datatypes.JSONMap(payload.Metadata)
	}

	if err := s.attempts.Create(ctx, &attempt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.InviteResponse{}, ErrPendingInviteExists
		}
		return dto.InviteResponse{}, recordSpanError(span, err)
	}

	span.SetAttributes(attribute.String("attempt.id", attempt.ID))
	observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusPending), "invite").Inc()
	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("test_id", test.ID).
		Bool("presentation", attempt.IsPresentation).
		Time("expires_at", attempt.ExpiresAt).
		Msg("test invitation created")

	data := attemptEventData(attempt)
	data["test_title"] = test.Title
	data["access_token"] = attempt.AccessToken
	s.outbox.Publish(ctx, models.EventTestAssigned, data)
	s.publishFeed(FeedAttemptInvited, attempt)

	return dto.InviteResponse{
		AttemptID:   attempt.ID,
		AccessToken: attempt.AccessToken,
		ExpiresAt:   attempt.ExpiresAt,
		Status:      attempt.Status,
	}, nil
}

func (s *attemptService) GetByToken(ctx context.Context, token string) (dto.CandidateAttemptView, error) {
	attempt, err := s.loadByToken(ctx, token)
	if err != nil {
		return dto.CandidateAttemptView{}, err
	}
	if attempt.Status == models.AttemptStatusTimeout || (attempt.Status.IsOpen() && attempt.IsExpired(s.now())) {
		return dto.CandidateAttemptView{}, ErrTestExpired
	}

	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return dto.CandidateAttemptView{}, err
	}

	view := dto.CandidateAttemptView{
		Attempt: dto.NewCandidateAttempt(attempt),
		Test:    dto.NewTestSummary(test),
	}

	if attempt.IsPresentation {
		var snapshot models.PresentationSnapshot
		if err := json.Unmarshal(attempt.QuestionsSnapshot, &snapshot); err != nil {
			s.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("unreadable presentation snapshot")
		}
		view.Presentation = &dto.CandidatePresentation{Themes: snapshot.Themes, ExtraInfo: snapshot.ExtraInfo}
		return view, nil
	}

	if attempt.StartedAt != nil && attempt.Status == models.AttemptStatusInProgress {
		questions, err := attempt.Questions()
		if err != nil {
			return dto.CandidateAttemptView{}, fmt.Errorf("decode question snapshot: %w", err)
		}
		view.Questions = dto.NewCandidateQuestions(questions)
	}

	return view, nil
}

func (s *attemptService) Start(ctx context.Context, token string) (dto.StartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempts.start")
	defer span.End()

	current, err := s.loadByToken(ctx, token)
	if err != nil {
		return dto.StartResponse{}, err
	}
	test, err := s.loadTest(ctx, current.TestID)
	if err != nil {
		return dto.StartResponse{}, err
	}

	now := s.now()
	started := false
	attempt, err := s.attempts.MutateByToken(ctx, token, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if err := closedAttemptError(a.Status); err != nil {
			return nil, err
		}
		if a.IsExpired(now) {
			return nil, ErrTestExpired
		}
		if a.Status == models.AttemptStatusInProgress {
			return nil, nil
		}

		deadline := now.Add(test.Duration())
		if a.ExpiresAt.Before(deadline) {
			deadline = a.ExpiresAt
		}
		started = true
		// heartbeats sent before the start must not count towards idle escape
		return map[string]interface{}{
			"status":            models.AttemptStatusInProgress,
			"started_at":        now,
			"expires_at":        deadline,
			"last_heartbeat_at": nil,
			"updated_at":        now,
		}, nil
	})
	if err != nil {
		return dto.StartResponse{}, s.mutationError(span, err)
	}

	span.SetAttributes(attribute.String("attempt.id", attempt.ID), attribute.Bool("attempt.first_start", started))
	if started {
		observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusInProgress), "start").Inc()
		s.logger.Info().Str("attempt_id", attempt.ID).Time("expires_at", attempt.ExpiresAt).Msg("attempt started")
		s.publishFeed(FeedAttemptStarted, attempt)
	}

	response := dto.StartResponse{
		AttemptID:        attempt.ID,
		Status:           attempt.Status,
		ExpiresAt:        attempt.ExpiresAt,
		RemainingSeconds: remainingSeconds(attempt, now),
	}
	if attempt.StartedAt != nil {
		response.StartedAt = *attempt.StartedAt
	}
	return response, nil
}

func (s *attemptService) SaveAnswer(ctx context.Context, token string, payload dto.SaveAnswerRequest) (dto.SaveAnswerResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SaveAnswerResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.save_answer", trace.WithAttributes(
		attribute.Int("attempt.question_id", payload.QuestionID),
	))
	defer span.End()

	now := s.now()
	answeredCount := 0
	attempt, err := s.attempts.MutateByToken(ctx, token, func(tx *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if err := closedAttemptError(a.Status); err != nil {
			return nil, err
		}
		if a.IsExpired(now) {
			return nil, ErrTestExpired
		}

		answers, err := a.SubmittedAnswers()
		if err != nil {
			return nil, fmt.Errorf("decode saved answers: %w", err)
		}
		answers = upsertAnswer(answers, models.SubmittedAnswer{
			QuestionID:       payload.QuestionID,
			Answer:           payload.Answer,
			TimeSpentSeconds: payload.TimeSpentSeconds,
			MarkedForReview:  payload.MarkedForReview,
			AnsweredAt:       &now,
		})
		answeredCount = len(answers)

		logEntry := models.AnswerLog{
			AttemptID:        a.ID,
			QuestionID:       payload.QuestionID,
			Answer:           datatypes.JSON(payload.Answer),
			TimeSpentSeconds: payload.TimeSpentSeconds,
			MarkedForReview:  payload.MarkedForReview,
			CreatedAt:        now,
		}
		if err := tx.Create(&logEntry).Error; err != nil {
			return nil, fmt.Errorf("append answer log: %w", err)
		}

		encoded, err := json.Marshal(answers)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"answers":    datatypes.JSON(encoded),
			"updated_at": now,
		}, nil
	})
	if err != nil {
		return dto.SaveAnswerResponse{}, s.mutationError(span, err)
	}

	s.logger.Debug().Str("attempt_id", attempt.ID).Int("question_id", payload.QuestionID).Msg("answer saved")

	return dto.SaveAnswerResponse{
		QuestionID:    payload.QuestionID,
		AnsweredCount: answeredCount,
		SavedAt:       now,
	}, nil
}

func (s *attemptService) ReportViolation(ctx context.Context, token string, payload dto.ViolationRequest) (dto.ViolationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ViolationResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.report_violation")
	defer span.End()

	violationType := strings.TrimSpace(s.sanitizer.Sanitize(payload.Type))
	details := strings.TrimSpace(s.sanitizer.Sanitize(payload.Details))
	if violationType == "" {
		violationType = "unknown"
	}

	now := s.now()
	terminated := false
	attempt, err := s.attempts.MutateByToken(ctx, token, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if a.Status != models.AttemptStatusInProgress {
			return nil, nil
		}

		count := a.TabSwitches + 1
		activity, err := a.ActivityLog()
		if err != nil {
			activity = []models.ActivityEntry{}
		}
		activity = append(activity, models.ActivityEntry{
			Type:       violationType,
			Details:    details,
			Count:      count,
			OccurredAt: now,
		})
		encoded, err := json.Marshal(activity)
		if err != nil {
			return nil, err
		}

		updates := map[string]interface{}{
			"tab_switches":        count,
			"suspicious_activity": datatypes.JSON(encoded),
			"updated_at":          now,
		}
		if count >= s.cfg.ViolationLimit {
			terminated = true
			updates["status"] = models.AttemptStatusEscaped
			updates["completed_at"] = now
			updates["score"] = 0
			updates["max_score"] = gorm.Expr("COALESCE(max_score, 0)")
			updates["percentage"] = 0
			updates["passed"] = false
		}
		return updates, nil
	})
	if err != nil {
		return dto.ViolationResponse{}, s.mutationError(span, err)
	}

	logger := s.logger.With().Str("attempt_id", attempt.ID).Int("tab_switches", attempt.TabSwitches).Logger()
	if terminated {
		observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusEscaped), "violation").Inc()
		logger.Warn().Msg("attempt terminated after repeated violations")
		s.publishFeed(FeedAttemptEscaped, attempt)
	} else if attempt.Status == models.AttemptStatusInProgress {
		logger.Info().Str("violation_type", violationType).Msg("violation recorded")
	}

	return dto.ViolationResponse{
		Status:      attempt.Status,
		TabSwitches: attempt.TabSwitches,
		Limit:       s.cfg.ViolationLimit,
		Terminated:  attempt.Status == models.AttemptStatusEscaped,
	}, nil
}

func (s *attemptService) Submit(ctx context.Context, token string, payload dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.submit")
	defer span.End()

	current, err := s.loadByToken(ctx, token)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if current.IsPresentation {
		return dto.SubmitResponse{}, ErrUsePresentationSubmit
	}
	test, err := s.loadTest(ctx, current.TestID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	now := s.now()
	var result grading.Result
	attempt, err := s.attempts.MutateByToken(ctx, token, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if err := closedAttemptError(a.Status); err != nil {
			return nil, err
		}
		if a.IsExpired(now) {
			return nil, ErrTestExpired
		}
		if a.Status == models.AttemptStatusPending {
			return nil, ErrNotStarted
		}

		answers, err := a.SubmittedAnswers()
		if err != nil {
			return nil, fmt.Errorf("decode saved answers: %w", err)
		}
		for _, answer := range payload.Answers {
			if answer.AnsweredAt == nil {
				answer.AnsweredAt = &now
			}
			answers = upsertAnswer(answers, answer)
		}

		questions, err := a.Questions()
		if err != nil {
			return nil, fmt.Errorf("decode question snapshot: %w", err)
		}
		result = grading.Grade(questions, answers)

		answersJSON, err := json.Marshal(answers)
		if err != nil {
			return nil, err
		}
		gradedJSON, err := json.Marshal(result.Answers)
		if err != nil {
			return nil, err
		}

		status := models.AttemptStatusCompleted
		if result.NeedsReview {
			status = models.AttemptStatusNeedsReview
		}

		return map[string]interface{}{
			"answers":            datatypes.JSON(answersJSON),
			"graded_answers":     datatypes.JSON(gradedJSON),
			"score":              result.Earned,
			"max_score":          result.MaxPossible,
			"percentage":         result.Percentage(),
			"passed":             result.Passed(test.PassingScore),
			"status":             status,
			"completed_at":       now,
			"time_spent_seconds": elapsedSeconds(a.StartedAt, now),
			"updated_at":         now,
		}, nil
	})
	if err != nil {
		return dto.SubmitResponse{}, s.mutationError(span, err)
	}

	span.SetAttributes(
		attribute.String("attempt.id", attempt.ID),
		attribute.String("attempt.status", string(attempt.Status)),
		attribute.Float64("attempt.percentage", result.Percentage()),
	)
	observability.AttemptTransitions().WithLabelValues(string(attempt.Status), "submit").Inc()
	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("status", string(attempt.Status)).
		Float64("score", result.Earned).
		Float64("max_score", result.MaxPossible).
		Msg("attempt submitted")

	data := attemptEventData(attempt)
	data["test_title"] = test.Title
	s.outbox.Publish(ctx, models.EventTestCompleted, data)
	s.publishFeed(FeedAttemptSubmitted, attempt)

	return dto.NewSubmitResponse(attempt), nil
}

func (s *attemptService) Heartbeat(ctx context.Context, token string) (dto.HeartbeatResponse, error) {
	now := s.now()
	attempt, err := s.attempts.MutateByToken(ctx, token, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if !a.Status.IsOpen() {
			return nil, nil
		}
		return map[string]interface{}{"last_heartbeat_at": now}, nil
	})
	if err != nil {
		return dto.HeartbeatResponse{}, s.mutationError(nil, err)
	}

	response := dto.HeartbeatResponse{Status: attempt.Status}
	if attempt.LastHeartbeatAt != nil {
		response.LastHeartbeatAt = *attempt.LastHeartbeatAt
	}
	return response, nil
}

func (s *attemptService) GetStatus(ctx context.Context, token string) (dto.StatusResponse, error) {
	attempt, err := s.loadByToken(ctx, token)
	if err != nil {
		return dto.StatusResponse{}, err
	}

	response := dto.StatusResponse{
		Status:           attempt.Status,
		IsPresentation:   attempt.IsPresentation,
		StartedAt:        attempt.StartedAt,
		ExpiresAt:        attempt.ExpiresAt,
		RemainingSeconds: remainingSeconds(attempt, s.now()),
		TabSwitches:      attempt.TabSwitches,
	}
	if answers, err := attempt.SubmittedAnswers(); err == nil {
		response.AnsweredCount = len(answers)
	}
	if !attempt.IsPresentation {
		if questions, err := attempt.Questions(); err == nil {
			response.QuestionCount = len(questions)
		}
	}
	return response, nil
}

func (s *attemptService) loadByToken(ctx context.Context, token string) (models.Attempt, error) {
	attempt, err := s.attempts.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrAttemptNotFound
		}
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (s *attemptService) loadByID(ctx context.Context, id string) (models.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrAttemptNotFound
		}
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (s *attemptService) loadTest(ctx context.Context, id string) (models.Test, error) {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Test{}, ErrTestNotFound
		}
		return models.Test{}, err
	}
	return test, nil
}

// mutationError maps repository failures onto service errors. Domain errors
// returned from inside a mutation pass through unchanged.
func (s *attemptService) mutationError(span trace.Span, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrAttemptNotFound
	case errors.Is(err, repository.ErrAttemptChanged):
		return ErrConcurrentUpdate
	case isDomainError(err):
		return err
	}
	if span != nil {
		return recordSpanError(span, err)
	}
	return err
}

func (s *attemptService) publishFeed(eventType string, attempt models.Attempt) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(eventType, attempt)
}

// closedAttemptError rejects candidate writes on attempts that left the open states.
func closedAttemptError(status models.AttemptStatus) error {
	switch status {
	case models.AttemptStatusCompleted, models.AttemptStatusNeedsReview:
		return ErrAlreadyCompleted
	case models.AttemptStatusTimeout:
		return ErrTestExpired
	case models.AttemptStatusEscaped:
		return ErrAttemptTerminated
	}
	return nil
}

var domainErrors = []error{
	ErrAttemptNotFound, ErrTestNotFound, ErrTestExpired, ErrAlreadyCompleted,
	ErrAttemptTerminated, ErrNotStarted, ErrNotGradable, ErrAnswerNotFound,
	ErrNotPresentation, ErrUsePresentationSubmit,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func buildSnapshot(test models.Test) (datatypes.JSON, error) {
	if test.IsPresentation() {
		themes := json.RawMessage(test.PresentationThemes)
		if len(themes) == 0 {
			themes = json.RawMessage("[]")
		}
		encoded, err := json.Marshal(models.PresentationSnapshot{
			TestType:  models.TestTypePresentation,
			Themes:    themes,
			ExtraInfo: test.PresentationExtraInfo,
		})
		if err != nil {
			return nil, fmt.Errorf("encode presentation snapshot: %w", err)
		}
		return datatypes.JSON(encoded), nil
	}

	if len(test.Questions) == 0 {
		return datatypes.JSON("[]"), nil
	}
	snapshot := make([]byte, len(test.Questions))
	copy(snapshot, test.Questions)
	return datatypes.JSON(snapshot), nil
}

func upsertAnswer(answers []models.SubmittedAnswer, answer models.SubmittedAnswer) []models.SubmittedAnswer {
	for i := range answers {
		if answers[i].QuestionID == answer.QuestionID {
			answers[i] = answer
			return answers
		}
	}
	return append(answers, answer)
}

// attemptEventData is the common body of outbox events about an attempt.
func attemptEventData(attempt models.Attempt) map[string]interface{} {
	data := map[string]interface{}{
		"attempt_id":      attempt.ID,
		"test_id":         attempt.TestID,
		"status":          attempt.Status,
		"candidate_name":  attempt.CandidateName,
		"candidate_email": attempt.CandidateEmail,
		"expires_at":      attempt.ExpiresAt,
		"is_presentation": attempt.IsPresentation,
	}
	if attempt.CandidateExternalID != nil {
		data["candidate_external_id"] = *attempt.CandidateExternalID
	}
	if attempt.CandidateChatID != nil {
		data["candidate_chat_id"] = *attempt.CandidateChatID
	}
	if attempt.Score != nil {
		data["score"] = *attempt.Score
	}
	if attempt.MaxScore != nil {
		data["max_score"] = *attempt.MaxScore
	}
	if attempt.Percentage != nil {
		data["percentage"] = *attempt.Percentage
	}
	if attempt.Passed != nil {
		data["passed"] = *attempt.Passed
	}
	if attempt.CompletedAt != nil {
		data["completed_at"] = *attempt.CompletedAt
	}
	return data
}

func remainingSeconds(attempt models.Attempt, now time.Time) int64 {
	if !attempt.Status.IsOpen() || !now.Before(attempt.ExpiresAt) {
		return 0
	}
	return int64(attempt.ExpiresAt.Sub(now) / time.Second)
}

func elapsedSeconds(startedAt *time.Time, now time.Time) interface{} {
	if startedAt == nil {
		return nil
	}
	seconds := int(now.Sub(*startedAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
