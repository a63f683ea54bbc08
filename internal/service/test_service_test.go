package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

func setupTestService(t *testing.T) TestService {
	t.Helper()
	db := setupServiceDB(t)
	return NewTestService(repository.NewTestRepository(db), validator.New(), zerolog.Nop())
}

func TestTestServiceAppliesDefaults(t *testing.T) {
	svc := setupTestService(t)

	created, err := svc.Create(context.Background(), dto.TestCreateRequest{
		Title:     "  Go basics  ",
		Questions: json.RawMessage(singleChoiceQuestion),
	}, "staff-1")
	require.NoError(t, err)
	require.Equal(t, "Go basics", created.Title)
	require.Equal(t, models.TestTypeQuestionBased, created.TestType)
	require.Equal(t, models.DefaultTestDurationMinutes, created.DurationMinutes)
	require.InDelta(t, models.DefaultPassingScore, created.PassingScore, 0.001)
	require.True(t, created.IsActive)

	loaded, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.JSONEq(t, singleChoiceQuestion, string(loaded.Questions))
}

func TestTestServiceRejectsInvalidQuestionSets(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	cases := map[string]string{
		"missing":        ``,
		"empty":          `[]`,
		"not an array":   `{"type":"multiple_choice"}`,
		"missing prompt": `[{"type":"short_answer"}]`,
		"few options":    `[{"type":"multiple_choice","question":"Pick","options":["only"],"correct_answer":0}]`,
	}
	for name, questions := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, dto.TestCreateRequest{
				Title:     "Broken test",
				Questions: json.RawMessage(questions),
			}, "")
			require.ErrorIs(t, err, ErrInvalidQuestionSet)
		})
	}
}

func TestTestServicePresentationNeedsThemes(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.TestCreateRequest{
		Title:    "Pitch",
		TestType: string(models.TestTypePresentation),
	}, "")
	require.ErrorIs(t, err, ErrInvalidThemes)

	_, err = svc.Create(ctx, dto.TestCreateRequest{
		Title:              "Pitch",
		TestType:           string(models.TestTypePresentation),
		PresentationThemes: json.RawMessage(`[]`),
	}, "")
	require.ErrorIs(t, err, ErrInvalidThemes)

	created, err := svc.Create(ctx, dto.TestCreateRequest{
		Title:              "Pitch",
		TestType:           string(models.TestTypePresentation),
		PresentationThemes: json.RawMessage(`[{"title":"Scaling reads"}]`),
	}, "")
	require.NoError(t, err)
	require.Equal(t, models.TestTypePresentation, created.TestType)
}

func TestTestServiceListAndLookup(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	inactive := false
	for _, request := range []dto.TestCreateRequest{
		{Title: "Go concurrency", Questions: json.RawMessage(singleChoiceQuestion)},
		{Title: "SQL joins", Questions: json.RawMessage(singleChoiceQuestion), IsActive: &inactive},
		{Title: "Architecture pitch", TestType: string(models.TestTypePresentation), PresentationThemes: json.RawMessage(`["caching"]`)},
	} {
		_, err := svc.Create(ctx, request, "")
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, dto.TestListRequest{})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	require.Equal(t, int64(3), all.Pagination.TotalItems)

	active, err := svc.List(ctx, dto.TestListRequest{ActiveOnly: true, TestType: string(models.TestTypeQuestionBased)})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	require.Equal(t, "Go concurrency", active.Items[0].Title)

	_, err = svc.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrTestNotFound)
}
