package dto

import (
	"time"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// InviteRequest is the staff payload for issuing a test invitation.
type InviteRequest struct {
	TestID              string                 `json:"test_id" validate:"required,uuid"`
	CandidateName       string                 `json:"candidate_name" validate:"required,min=1,max=255"`
	CandidateEmail      string                 `json:"candidate_email" validate:"required,email,max=255"`
	CandidateExternalID *string                `json:"candidate_external_id" validate:"omitempty,max=128"`
	CandidatePhone      *string                `json:"candidate_phone" validate:"omitempty,max=64"`
	CandidateChatID     *int64                 `json:"candidate_chat_id"`
	ExpiresInHours      int                    `json:"expires_in_hours" validate:"omitempty,gte=1,lte=720"`
	Metadata            map[string]interface{} `json:"metadata"`
}

// InviteResponse returns the bearer token for the new attempt.
type InviteResponse struct {
	AttemptID   string               `json:"attempt_id"`
	AccessToken string               `json:"access_token"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Status      models.AttemptStatus `json:"status"`
}

// AttemptListRequest describes staff filters for listing attempts.
type AttemptListRequest struct {
	Page           int    `query:"page" validate:"omitempty,gte=1"`
	PageSize       int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
	TestID         string `query:"test_id" validate:"omitempty,uuid"`
	CandidateEmail string `query:"candidate_email" validate:"omitempty,email"`
	Status         string `query:"status" validate:"omitempty,oneof=pending in_progress completed needs_review timeout escaped"`
	Search         string `query:"search" validate:"omitempty,max=255"`
}

// GradeAnswerRequest records a manual grade for one flagged answer. Either
// IsCorrect (full or zero points) or Points must be given.
type GradeAnswerRequest struct {
	QuestionID int      `json:"question_id" validate:"required,gte=1"`
	IsCorrect  *bool    `json:"is_correct"`
	Points     *float64 `json:"points" validate:"omitempty,gte=0"`
	Comment    string   `json:"comment" validate:"omitempty,max=2000"`
}

// GradePresentationRequest records the grade of a presentation submission.
type GradePresentationRequest struct {
	Grade   *float64 `json:"grade" validate:"required,gte=0,lte=100"`
	Comment string   `json:"comment" validate:"omitempty,max=2000"`
}

// AttemptResponse is the staff view of an attempt.
type AttemptResponse struct {
	ID                       string                   `json:"id"`
	TestID                   string                   `json:"test_id"`
	CandidateName            string                   `json:"candidate_name"`
	CandidateEmail           string                   `json:"candidate_email"`
	CandidateExternalID      *string                  `json:"candidate_external_id,omitempty"`
	CandidatePhone           *string                  `json:"candidate_phone,omitempty"`
	CandidateChatID          *int64                   `json:"candidate_chat_id,omitempty"`
	Status                   models.AttemptStatus     `json:"status"`
	IsPresentation           bool                     `json:"is_presentation"`
	ExpiresAt                time.Time                `json:"expires_at"`
	Score                    *float64                 `json:"score"`
	MaxScore                 *float64                 `json:"max_score"`
	Percentage               *float64                 `json:"percentage"`
	Passed                   *bool                    `json:"passed"`
	TimeSpentSeconds         *int                     `json:"time_spent_seconds,omitempty"`
	TabSwitches              int                      `json:"tab_switches"`
	SuspiciousActivity       []models.ActivityEntry   `json:"suspicious_activity,omitempty"`
	Answers                  []models.SubmittedAnswer `json:"answers,omitempty"`
	GradedAnswers            []models.GradedAnswer    `json:"graded_answers,omitempty"`
	PresentationLink         *string                  `json:"presentation_link,omitempty"`
	PresentationFilePath     *string                  `json:"presentation_file_path,omitempty"`
	PresentationGrade        *float64                 `json:"presentation_grade,omitempty"`
	PresentationGradeComment *string                  `json:"presentation_grade_comment,omitempty"`
	GradedBy                 *string                  `json:"graded_by,omitempty"`
	GradedAt                 *time.Time               `json:"graded_at,omitempty"`
	Metadata                 map[string]interface{}   `json:"metadata,omitempty"`
	DeadlineNotified         bool                     `json:"deadline_notified"`
	StartedAt                *time.Time               `json:"started_at,omitempty"`
	CompletedAt              *time.Time               `json:"completed_at,omitempty"`
	LastHeartbeatAt          *time.Time               `json:"last_heartbeat_at,omitempty"`
	CreatedAt                time.Time                `json:"created_at"`
	UpdatedAt                time.Time                `json:"updated_at"`
}

// AttemptListResponse wraps a paginated attempt listing.
type AttemptListResponse struct {
	Items      []AttemptResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// StatusDistributionResponse counts attempts per status.
type StatusDistributionResponse struct {
	TestID   string           `json:"test_id,omitempty"`
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// NewAttemptResponse converts an Attempt model into the staff DTO. Malformed
// JSON columns are omitted rather than failing the whole response.
func NewAttemptResponse(model models.Attempt) AttemptResponse {
	response := AttemptResponse{
		ID:                       model.ID,
		TestID:                   model.TestID,
		CandidateName:            model.CandidateName,
		CandidateEmail:           model.CandidateEmail,
		CandidateExternalID:      model.CandidateExternalID,
		CandidatePhone:           model.CandidatePhone,
		CandidateChatID:          model.CandidateChatID,
		Status:                   model.Status,
		IsPresentation:           model.IsPresentation,
		ExpiresAt:                model.ExpiresAt,
		Score:                    model.Score,
		MaxScore:                 model.MaxScore,
		Percentage:               model.Percentage,
		Passed:                   model.Passed,
		TimeSpentSeconds:         model.TimeSpentSeconds,
		TabSwitches:              model.TabSwitches,
		PresentationLink:         model.PresentationLink,
		PresentationFilePath:     model.PresentationFilePath,
		PresentationGrade:        model.PresentationGrade,
		PresentationGradeComment: model.PresentationGradeComment,
		GradedBy:                 model.GradedBy,
		GradedAt:                 model.GradedAt,
		DeadlineNotified:         model.DeadlineNotified,
		StartedAt:                model.StartedAt,
		CompletedAt:              model.CompletedAt,
		LastHeartbeatAt:          model.LastHeartbeatAt,
		CreatedAt:                model.CreatedAt,
		UpdatedAt:                model.UpdatedAt,
	}

	if activity, err := model.ActivityLog(); err == nil && len(activity) > 0 {
		response.SuspiciousActivity = activity
	}
	if answers, err := model.SubmittedAnswers(); err == nil && len(answers) > 0 {
		response.Answers = answers
	}
	if graded, err := model.GradedAnswerList(); err == nil && len(graded) > 0 {
		response.GradedAnswers = graded
	}
	if len(model.Metadata) > 0 {
		response.Metadata = map[string]interface{}(model.Metadata)
	}

	return response
}

// NewAttemptResponseSlice converts attempt models into DTOs.
func NewAttemptResponseSlice(items []models.Attempt) []AttemptResponse {
	responses := make([]AttemptResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewAttemptResponse(item))
	}
	return responses
}

// AttemptEvent is published on every attempt transition for live dashboards.
type AttemptEvent struct {
	Type       string               `json:"type"`
	AttemptID  string               `json:"attempt_id"`
	TestID     string               `json:"test_id"`
	Status     models.AttemptStatus `json:"status"`
	Percentage *float64             `json:"percentage,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}
