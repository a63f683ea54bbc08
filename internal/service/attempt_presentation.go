package service

import (
	"context"
	"errors"
	"mime/multipart"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/grading"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
)

// SubmitPresentation hands in a presentation attempt as a link, an uploaded
// file or both. Submissions always wait for a human grader.
func (s *attemptService) SubmitPresentation(ctx context.Context, token string, payload dto.PresentationSubmitRequest, file *multipart.FileHeader) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.submit_presentation")
	defer span.End()

	link := strings.TrimSpace(payload.Link)
	if link == "" && file == nil {
		return dto.SubmitResponse{}, ErrEmptySubmission
	}
	if link != "" {
		if err := validatePresentationLink(link); err != nil {
			return dto.SubmitResponse{}, err
		}
	}

	current, err := s.loadByToken(ctx, token)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if !current.IsPresentation {
		return dto.SubmitResponse{}, ErrNotPresentation
	}
	// checked before storing so closed attempts never leave files behind
	if err := s.presentationWritable(current); err != nil {
		return dto.SubmitResponse{}, err
	}

	var filePath *string
	if file != nil {
		if s.uploads == nil {
			return dto.SubmitResponse{}, errors.New("presentation uploads are not configured")
		}
		stored, err := s.uploads.StorePresentation(ctx, file)
		if err != nil {
			return dto.SubmitResponse{}, err
		}
		filePath = &stored.Path
	}

	now := s.now()
	attempt, err := s.attempts.MutateByToken(ctx, token, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if err := s.presentationWritable(*a); err != nil {
			return nil, err
		}

		updates := map[string]interface{}{
			"status":             models.AttemptStatusNeedsReview,
			"completed_at":       now,
			"time_spent_seconds": elapsedSeconds(a.StartedAt, now),
			"updated_at":         now,
		}
		if link != "" {
			updates["presentation_link"] = link
		}
		if filePath != nil {
			updates["presentation_file_path"] = *filePath
		}
		return updates, nil
	})
	if err != nil {
		if filePath != nil {
			s.logger.Warn().Err(err).Str("file_path", *filePath).Msg("presentation stored but submission rejected")
		}
		return dto.SubmitResponse{}, s.mutationError(span, err)
	}

	span.SetAttributes(attribute.String("attempt.id", attempt.ID), attribute.Bool("attempt.has_file", filePath != nil))
	observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusNeedsReview), "presentation").Inc()
	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Bool("has_link", link != "").
		Bool("has_file", filePath != nil).
		Msg("presentation submitted")

	data := attemptEventData(attempt)
	if attempt.PresentationLink != nil {
		data["presentation_link"] = *attempt.PresentationLink
	}
	if attempt.PresentationFilePath != nil {
		data["presentation_file_path"] = *attempt.PresentationFilePath
	}
	s.outbox.Publish(ctx, models.EventPresentationSubmitted, data)
	s.publishFeed(FeedAttemptSubmitted, attempt)

	return dto.NewSubmitResponse(attempt), nil
}

// GradePresentation scores a presentation on a 0..100 scale and completes it.
func (s *attemptService) GradePresentation(ctx context.Context, id string, payload dto.GradePresentationRequest, grader string) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "attempts.grade_presentation", trace.WithAttributes(
		attribute.String("attempt.id", id),
	))
	defer span.End()

	current, err := s.loadByID(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	if !current.IsPresentation {
		return dto.AttemptResponse{}, ErrNotPresentation
	}
	test, err := s.loadTest(ctx, current.TestID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	grade := models.RoundScore(*payload.Grade)
	comment := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comment))
	now := s.now()

	attempt, err := s.attempts.MutateByID(ctx, id, func(_ *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
		if !a.Status.IsSubmitted() {
			return nil, ErrNotGradable
		}
		updates := map[string]interface{}{
			"presentation_grade":         grade,
			"presentation_grade_comment": nil,
			"graded_by":                  grader,
			"graded_at":                  now,
			"score":                      grade,
			"max_score":                  100,
			"percentage":                 grade,
			"passed":                     grading.Passed(grade, test.PassingScore),
			"status":                     models.AttemptStatusCompleted,
			"updated_at":                 now,
		}
		if comment != "" {
			updates["presentation_grade_comment"] = comment
		}
		return updates, nil
	})
	if err != nil {
		return dto.AttemptResponse{}, s.mutationError(span, err)
	}

	observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusCompleted), "grade").Inc()
	s.logger.Info().Str("attempt_id", attempt.ID).Float64("grade", grade).Str("graded_by", grader).Msg("presentation graded")

	s.outbox.Publish(ctx, models.EventAttemptGraded, attemptEventData(attempt))
	s.publishFeed(FeedAttemptGraded, attempt)

	return dto.NewAttemptResponse(attempt), nil
}

func (s *attemptService) presentationWritable(attempt models.Attempt) error {
	if err := closedAttemptError(attempt.Status); err != nil {
		return err
	}
	if attempt.IsExpired(s.now()) {
		return ErrTestExpired
	}
	if attempt.Status == models.AttemptStatusPending {
		return ErrNotStarted
	}
	return nil
}

func validatePresentationLink(link string) error {
	parsed, err := url.Parse(link)
	if err != nil {
		return ErrInvalidURL
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
