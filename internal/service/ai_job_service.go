package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/queue"
	"github.com/noah-isme/skilltest-api/pkg/ai"
)

// AIJobQueueName labels the generation queue in metrics and wake-up signals.
const AIJobQueueName = "ai_jobs"

const defaultGeneratedQuestions = 6

// AIJobService queues question generation and runs it in the background.
type AIJobService interface {
	Enqueue(ctx context.Context, payload dto.AIJobCreateRequest, createdBy string) (dto.AIJobResponse, error)
	Get(ctx context.Context, id string) (dto.AIJobResponse, error)
	RunOnce(ctx context.Context) (bool, error)
	ReclaimStale(ctx context.Context) (int64, error)
}

// AIJobConfig tunes job execution.
type AIJobConfig struct {
	Timeout      time.Duration
	MaxQuestions int
	StaleAfter   time.Duration
}

type generatedSet struct {
	Questions []ai.GeneratedQuestion `json:"questions"`
	Provider  string                 `json:"provider,omitempty"`
	Model     string                 `json:"model,omitempty"`
}

type aiJobService struct {
	queue     *queue.Store[models.AIJob]
	generator ai.Generator
	tests     TestService
	cfg       AIJobConfig
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAIJobService constructs the job service. generator may be nil, in which
// case every job fails with a configuration error.
func NewAIJobService(store *queue.Store[models.AIJob], generator ai.Generator, tests TestService, cfg AIJobConfig, validate *validator.Validate, logger zerolog.Logger) AIJobService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 20
	}
	return &aiJobService{
		queue:     store,
		generator: generator,
		tests:     tests,
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "ai_job_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/skilltest-api/internal/service/ai_job"),
	}
}

func (s *aiJobService) Enqueue(ctx context.Context, payload dto.AIJobCreateRequest, createdBy string) (dto.AIJobResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AIJobResponse{}, err
	}

	count := payload.QuestionCount
	if count <= 0 {
		count = defaultGeneratedQuestions
	}
	if count > s.cfg.MaxQuestions {
		count = s.cfg.MaxQuestions
	}

	skills := make([]string, 0, len(payload.Skills))
	for _, skill := range payload.Skills {
		if trimmed := strings.TrimSpace(skill); trimmed != "" {
			skills = append(skills, trimmed)
		}
	}

	params, err := json.Marshal(dto.AIJobParams{
		Profession:    strings.TrimSpace(payload.Profession),
		Skills:        skills,
		CVSummary:     strings.TrimSpace(payload.CVSummary),
		QuestionCount: count,
	})
	if err != nil {
		return dto.AIJobResponse{}, err
	}

	duration := models.DefaultTestDurationMinutes
	if payload.DurationMinutes != nil {
		duration = *payload.DurationMinutes
	}
	passing := models.DefaultPassingScore
	if payload.PassingScore != nil {
		passing = *payload.PassingScore
	}

	job := models.AIJob{
		Params:          datatypes.JSON(params),
		Persist:         payload.Persist,
		Title:           trimmedOrNil(payload.Title),
		Description:     trimmedOrNil(payload.Description),
		DurationMinutes: &duration,
		PassingScore:    &passing,
		QueueFields: models.QueueFields{
			Status:      models.QueueStatusPending,
			MaxAttempts: 1,
		},
	}
	if createdBy = strings.TrimSpace(createdBy); createdBy != "" {
		job.CreatedBy = &createdBy
	}

	if err := s.queue.Enqueue(ctx, &job); err != nil {
		return dto.AIJobResponse{}, err
	}

	s.logger.Info().Str("job_id", job.ID).Int("question_count", count).Bool("persist", job.Persist).Msg("ai job enqueued")
	return dto.NewAIJobResponse(job), nil
}

func (s *aiJobService) Get(ctx context.Context, id string) (dto.AIJobResponse, error) {
	job, err := s.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return dto.AIJobResponse{}, ErrJobNotFound
		}
		return dto.AIJobResponse{}, err
	}
	return dto.NewAIJobResponse(job), nil
}

func (s *aiJobService) ReclaimStale(ctx context.Context) (int64, error) {
	return s.queue.ReclaimStale(ctx, s.cfg.StaleAfter)
}

// RunOnce claims one job and generates its questions. A generation timeout
// completes the job with an empty set; other failures fail it. When ctx is
// cancelled mid-run the job stays running and is reclaimed later.
func (s *aiJobService) RunOnce(ctx context.Context) (bool, error) {
	job, err := s.queue.ClaimOne(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	ctx, span := s.tracer.Start(ctx, "ai_job.run", trace.WithAttributes(
		attribute.String("ai_job.id", job.ID),
	))
	defer span.End()

	logger := s.logger.With().Str("job_id", job.ID).Logger()
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var params dto.AIJobParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return true, s.failJob(finalizeCtx, span, job.ID, fmt.Errorf("decode job params: %w", err), nil)
	}
	if s.generator == nil {
		return true, s.failJob(finalizeCtx, span, job.ID, errors.New("no question generator configured"), nil)
	}

	genCtx, genCancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer genCancel()

	result, genErr := s.generator.Generate(genCtx, ai.GenerationRequest{
		Profession: params.Profession,
		Skills:     params.Skills,
		CVSummary:  params.CVSummary,
		Count:      params.QuestionCount,
	})
	logs := append([]string(nil), result.Logs...)

	if genErr != nil {
		if ctx.Err() != nil {
			logger.Warn().Msg("ai job interrupted, leaving it for reclaim")
			return true, nil
		}
		if errors.Is(genErr, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			logs = append(logs, fmt.Sprintf("timeout: generation exceeded %s", s.cfg.Timeout))
			logger.Warn().Dur("timeout", s.cfg.Timeout).Msg("ai generation timed out, completing with empty set")
			return true, s.completeJob(finalizeCtx, span, job.ID, generatedSet{Questions: []ai.GeneratedQuestion{}}, logs, nil)
		}
		return true, s.failJob(finalizeCtx, span, job.ID, genErr, logs)
	}

	set := generatedSet{Questions: result.Questions, Provider: result.Provider, Model: result.Model}
	if set.Questions == nil {
		set.Questions = []ai.GeneratedQuestion{}
	}
	encoded, err := json.Marshal(set.Questions)
	if err != nil {
		return true, s.failJob(finalizeCtx, span, job.ID, err, logs)
	}
	if err := validateQuestionSet(encoded); err != nil {
		return true, s.failJob(finalizeCtx, span, job.ID, err, logs)
	}

	var testID *string
	if job.Persist && len(set.Questions) > 0 {
		created, err := s.persistTest(finalizeCtx, *job, params, set, encoded)
		if err != nil {
			return true, s.failJob(finalizeCtx, span, job.ID, fmt.Errorf("persist generated test: %w", err), logs)
		}
		testID = &created
		logs = append(logs, "persisted as test "+created)
	}

	logger.Info().Int("questions", len(set.Questions)).Str("provider", set.Provider).Msg("ai job succeeded")
	return true, s.completeJob(finalizeCtx, span, job.ID, set, logs, testID)
}

func (s *aiJobService) persistTest(ctx context.Context, job models.AIJob, params dto.AIJobParams, set generatedSet, questions []byte) (string, error) {
	title := params.Profession + " assessment"
	if job.Title != nil {
		title = *job.Title
	}
	request := dto.TestCreateRequest{
		Title:     title,
		Questions: json.RawMessage(questions),
		TestType:  string(models.TestTypeQuestionBased),
		AIMetadata: map[string]interface{}{
			"job_id":   job.ID,
			"provider": set.Provider,
			"model":    set.Model,
			"skills":   params.Skills,
		},
	}
	if job.Description != nil {
		request.Description = *job.Description
	}
	if job.DurationMinutes != nil {
		request.DurationMinutes = *job.DurationMinutes
	}
	request.PassingScore = job.PassingScore

	createdBy := ""
	if job.CreatedBy != nil {
		createdBy = *job.CreatedBy
	}
	test, err := s.tests.Create(ctx, request, createdBy)
	if err != nil {
		return "", err
	}
	return test.ID, nil
}

func (s *aiJobService) completeJob(ctx context.Context, span trace.Span, id string, set generatedSet, logs []string, testID *string) error {
	resultJSON, err := json.Marshal(set)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"result": datatypes.JSON(resultJSON),
		"logs":   encodeLogs(logs),
	}
	if testID != nil {
		fields["test_id"] = *testID
	}
	if err := s.queue.Complete(ctx, id, fields); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetStatus(codes.Ok, "generated")
	return nil
}

func (s *aiJobService) failJob(ctx context.Context, span trace.Span, id string, cause error, logs []string) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "generation failed")
	s.logger.Error().Err(cause).Str("job_id", id).Msg("ai job failed")

	fields := map[string]interface{}{}
	if len(logs) > 0 {
		fields["logs"] = encodeLogs(logs)
	}
	_, err := s.queue.Fail(ctx, id, cause, fields)
	return err
}

func encodeLogs(logs []string) datatypes.JSON {
	if logs == nil {
		logs = []string{}
	}
	encoded, err := json.Marshal(logs)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(encoded)
}
