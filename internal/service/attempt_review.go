package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/grading"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

func (s *attemptService) Get(ctx context.Context, id string) (dto.AttemptResponse, error) {
	attempt, err := s.loadByID(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	return dto.NewAttemptResponse(attempt), nil
}

func (s *attemptService) List(ctx context.Context, query dto.AttemptListRequest) (dto.AttemptListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.AttemptListResponse{}, err
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	items, total, err := s.attempts.List(ctx, repository.AttemptFilter{
		TestID:   strings.TrimSpace(query.TestID),
		Email:    normalizeEmail(query.CandidateEmail),
		Status:   models.AttemptStatus(query.Status),
		Search:   strings.TrimSpace(query.Search),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return dto.AttemptListResponse{}, err
	}

	return dto.AttemptListResponse{
		Items:      dto.NewAttemptResponseSlice(items),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

func (s *attemptService) ListNeedsReview(ctx context.Context, page, pageSize int) (dto.AttemptListResponse, error) {
	return s.List(ctx, dto.AttemptListRequest{
		Page:     page,
		PageSize: pageSize,
		Status:   string(models.AttemptStatusNeedsReview),
	})
}

func (s *attemptService) StatusDistribution(ctx context.Context, testID string) (dto.StatusDistributionResponse, error) {
	testID = strings.TrimSpace(testID)
	counts, err := s.attempts.StatusCounts(ctx, testID)
	if err != nil {
		return dto.StatusDistributionResponse{}, err
	}

	response := dto.StatusDistributionResponse{TestID: testID, ByStatus: make(map[string]int64, len(counts))}
	for status, count := range counts {
		response.ByStatus[string(status)] = count
		response.Total += count
	}
	return response, nil
}

// Delete removes an invitation that was never started.
func (s *attemptService) Delete(ctx context.Context, id string) error {
	deleted, err := s.attempts.DeletePending(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		if _, err := s.loadByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}

	s.logger.Info().Str("attempt_id", id).Msg("pending invitation deleted")
	s.publishFeed(FeedAttemptDeleted, models.Attempt{ID: id, Status: models.AttemptStatusPending})
	return nil
}

// GradeAnswer applies a manual grade to one answer and recomputes the
// attempt totals. The attempt completes once no answer is flagged.
func (s *attemptService) GradeAnswer(ctx context.Context, id string, payload dto.GradeAnswerRequest, grader string) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}
	if payload.IsCorrect == nil && payload.Points == nil {
		return dto.AttemptResponse{}, ErrGradeRequired
	}

	ctx, span := s.tracer.Start(ctx, "attempts.grade_answer", trace.WithAttributes(
		attribute.String("attempt.id", id),
		attribute.Int("attempt.question_id", payload.QuestionID),
	))
	defer span.End()

	current, err := s.loadByID(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	test, err := s.loadTest(ctx, current.TestID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	comment := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comment))
	now := s.now()
	var previous models.AttemptStatus

	attempt, err := s.attempts.MutateByID(ctx, id, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if !a.Status.IsSubmitted() {
			return nil, ErrNotGradable
		}
		previous = a.Status

		graded, err := a.GradedAnswerList()
		if err != nil {
			return nil, err
		}
		index := -1
		for i := range graded {
			if graded[i].QuestionID == payload.QuestionID {
				index = i
				break
			}
		}
		if index < 0 {
			return nil, ErrAnswerNotFound
		}

		applyManualGrade(&graded[index], payload, comment, grader, now)
		result := grading.Recompute(graded)

		encoded, err := json.Marshal(result.Answers)
		if err != nil {
			return nil, err
		}

		status := models.AttemptStatusCompleted
		if result.NeedsReview {
			status = models.AttemptStatusNeedsReview
		}
		return map[string]interface{}{
			"graded_answers": datatypes.JSON(encoded),
			"score":          result.Earned,
			"max_score":      result.MaxPossible,
			"percentage":     result.Percentage(),
			"passed":         result.Passed(test.PassingScore),
			"status":         status,
			"graded_by":      grader,
			"graded_at":      now,
			"updated_at":     now,
		}, nil
	})
	if err != nil {
		return dto.AttemptResponse{}, s.mutationError(span, err)
	}

	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Int("question_id", payload.QuestionID).
		Str("status", string(attempt.Status)).
		Str("graded_by", grader).
		Msg("answer graded")

	if previous == models.AttemptStatusNeedsReview && attempt.Status == models.AttemptStatusCompleted {
		observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusCompleted), "grade").Inc()
		s.outbox.Publish(ctx, models.EventAttemptGraded, attemptEventData(attempt))
		s.publishFeed(FeedAttemptGraded, attempt)
	}

	return dto.NewAttemptResponse(attempt), nil
}

// applyManualGrade overrides one graded answer. Points are capped at the
// question's value; a bare verdict awards all or nothing.
func applyManualGrade(answer *models.GradedAnswer, payload dto.GradeAnswerRequest, comment, grader string, now time.Time) {
	var earned float64
	switch {
	case payload.Points != nil:
		earned = *payload.Points
		if earned > answer.PointsPossible {
			earned = answer.PointsPossible
		}
	case *payload.IsCorrect:
		earned = answer.PointsPossible
	}

	correct := earned >= answer.PointsPossible && answer.PointsPossible > 0
	if payload.IsCorrect != nil {
		correct = *payload.IsCorrect
	}

	answer.PointsEarned = models.RoundScore(earned)
	answer.IsCorrect = &correct
	answer.NeedsReview = false
	answer.GraderComment = comment
	answer.GradedBy = grader
	answer.GradedAt = &now
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}
