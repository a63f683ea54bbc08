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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

// TestService manages assessment definitions.
type TestService interface {
	Create(ctx context.Context, payload dto.TestCreateRequest, createdBy string) (dto.TestResponse, error)
	Get(ctx context.Context, id string) (dto.TestResponse, error)
	List(ctx context.Context, query dto.TestListRequest) (dto.TestListResponse, error)
}

type testService struct {
	repo      repository.TestRepository
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTestService constructs a test definition service.
func NewTestService(repo repository.TestRepository, validate *validator.Validate, logger zerolog.Logger) TestService {
	return &testService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "test_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *testService) Create(ctx context.Context, payload dto.TestCreateRequest, createdBy string) (dto.TestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TestResponse{}, err
	}

	test := models.Test{
		Title:                 strings.TrimSpace(payload.Title),
		Description:           strings.TrimSpace(payload.Description),
		Instructions:          strings.TrimSpace(payload.Instructions),
		DurationMinutes:       payload.DurationMinutes,
		PassingScore:          models.DefaultPassingScore,
		TestType:              models.TestType(payload.TestType),
		PresentationExtraInfo: strings.TrimSpace(payload.PresentationExtraInfo),
		IsActive:              true,
		CreatedAt:             s.now(),
		UpdatedAt:             s.now(),
	}
	if test.TestType == "" {
		test.TestType = models.TestTypeQuestionBased
	}
	if test.DurationMinutes <= 0 {
		test.DurationMinutes = models.DefaultTestDurationMinutes
	}
	if payload.PassingScore != nil {
		test.PassingScore = models.RoundScore(*payload.PassingScore)
	}
	if payload.IsActive != nil {
		test.IsActive = *payload.IsActive
	}
	if createdBy = strings.TrimSpace(createdBy); createdBy != "" {
		test.CreatedBy = &createdBy
	}
	if len(payload.AIMetadata) > 0 {
		test.AIMetadata = datatypes.JSONMap(payload.AIMetadata)
	}

	if test.IsPresentation() {
		themes, err := normalizeThemes(payload.PresentationThemes)
		if err != nil {
			return dto.TestResponse{}, err
		}
		test.PresentationThemes = themes
	} else {
		if len(strings.TrimSpace(string(payload.Questions))) == 0 {
			return dto.TestResponse{}, fmt.Errorf("%w: at least one question is required", ErrInvalidQuestionSet)
		}
		if err := validateQuestionSet(payload.Questions); err != nil {
			return dto.TestResponse{}, err
		}
		set, err := models.ParseQuestionSet(payload.Questions)
		if err != nil {
			return dto.TestResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuestionSet, err)
		}
		if len(set) == 0 {
			return dto.TestResponse{}, fmt.Errorf("%w: at least one question is required", ErrInvalidQuestionSet)
		}
		test.Questions = datatypes.JSON(payload.Questions)
	}

	if err := s.repo.Create(ctx, &test); err != nil {
		return dto.TestResponse{}, err
	}

	s.logger.Info().
		Str("test_id", test.ID).
		Str("test_type", string(test.TestType)).
		Int("duration_minutes", test.DurationMinutes).
		Msg("test created")

	return dto.NewTestResponse(test), nil
}

func (s *testService) Get(ctx context.Context, id string) (dto.TestResponse, error) {
	test, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TestResponse{}, ErrTestNotFound
		}
		return dto.TestResponse{}, err
	}
	return dto.NewTestResponse(test), nil
}

func (s *testService) List(ctx context.Context, query dto.TestListRequest) (dto.TestListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.TestListResponse{}, err
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, repository.TestFilter{
		Search:     strings.TrimSpace(query.Search),
		TestType:   models.TestType(query.TestType),
		ActiveOnly: query.ActiveOnly,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return dto.TestListResponse{}, err
	}

	return dto.TestListResponse{
		Items:      dto.NewTestResponseSlice(items),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

func normalizeThemes(raw json.RawMessage) (datatypes.JSON, error) {
	var themes []json.RawMessage
	if err := json.Unmarshal(raw, &themes); err != nil || len(themes) == 0 {
		return nil, ErrInvalidThemes
	}
	encoded, err := json.Marshal(themes)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}
