package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// CandidateQuestion is a question with everything that reveals the answer removed.
type CandidateQuestion struct {
	ID          int                 `json:"id"`
	Type        models.QuestionType `json:"type"`
	Question    string              `json:"question"`
	Points      int                 `json:"points"`
	Options     []string            `json:"options,omitempty"`
	MinWords    int                 `json:"min_words,omitempty"`
	Language    string              `json:"language,omitempty"`
	StarterCode string              `json:"starter_code,omitempty"`
}

// CandidatePresentation describes the presentation assignment.
type CandidatePresentation struct {
	Themes    json.RawMessage `json:"themes,omitempty"`
	ExtraInfo string          `json:"extra_info,omitempty"`
}

// CandidateAttempt is the candidate's view of their own attempt.
type CandidateAttempt struct {
	ID               string                   `json:"id"`
	CandidateName    string                   `json:"candidate_name"`
	Status           models.AttemptStatus     `json:"status"`
	IsPresentation   bool                     `json:"is_presentation"`
	ExpiresAt        time.Time                `json:"expires_at"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	CompletedAt      *time.Time               `json:"completed_at,omitempty"`
	TabSwitches      int                      `json:"tab_switches"`
	Answers          []models.SubmittedAnswer `json:"answers,omitempty"`
	Score            *float64                 `json:"score,omitempty"`
	MaxScore         *float64                 `json:"max_score,omitempty"`
	Percentage       *float64                 `json:"percentage,omitempty"`
	Passed           *bool                    `json:"passed,omitempty"`
	PresentationLink *string                  `json:"presentation_link,omitempty"`
}

// CandidateAttemptView is returned by the public get-by-token endpoint.
// Questions are only included once the attempt has been started.
type CandidateAttemptView struct {
	Attempt      CandidateAttempt       `json:"attempt"`
	Test         TestSummary            `json:"test"`
	Questions    []CandidateQuestion    `json:"questions,omitempty"`
	Presentation *CandidatePresentation `json:"presentation,omitempty"`
}

// StartResponse reports the effective window of a started attempt.
type StartResponse struct {
	AttemptID        string               `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RemainingSeconds int64                `json:"remaining_seconds"`
}

// SaveAnswerRequest stores one answer while the attempt is open.
type SaveAnswerRequest struct {
	QuestionID       int             `json:"question_id" validate:"required,gte=1"`
	Answer           json.RawMessage `json:"answer" validate:"required"`
	TimeSpentSeconds *int            `json:"time_spent_seconds" validate:"omitempty,gte=0"`
	MarkedForReview  bool            `json:"marked_for_review"`
}

// SaveAnswerResponse acknowledges a saved answer.
type SaveAnswerResponse struct {
	QuestionID    int       `json:"question_id"`
	AnsweredCount int       `json:"answered_count"`
	SavedAt       time.Time `json:"saved_at"`
}

// SubmitRequest hands the attempt in. Answers given here override saved ones
// for the same question.
type SubmitRequest struct {
	Answers []models.SubmittedAnswer `json:"answers" validate:"omitempty,dive"`
}

// SubmitResponse reports the grading outcome.
type SubmitResponse struct {
	AttemptID        string               `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	Score            *float64             `json:"score"`
	MaxScore         *float64             `json:"max_score"`
	Percentage       *float64             `json:"percentage"`
	Passed           *bool                `json:"passed"`
	NeedsReview      bool                 `json:"needs_review"`
	TimeSpentSeconds *int                 `json:"time_spent_seconds,omitempty"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// PresentationSubmitRequest carries the optional link of a presentation submission.
type PresentationSubmitRequest struct {
	Link string `form:"presentation_link" json:"presentation_link" validate:"omitempty,max=2048"`
}

// StatusResponse is the lightweight polling view of an attempt.
type StatusResponse struct {
	Status           models.AttemptStatus `json:"status"`
	IsPresentation   bool                 `json:"is_presentation"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RemainingSeconds int64                `json:"remaining_seconds"`
	AnsweredCount    int                  `json:"answered_count"`
	QuestionCount    int                  `json:"question_count"`
	TabSwitches      int                  `json:"tab_switches"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	Status          models.AttemptStatus `json:"status"`
	LastHeartbeatAt time.Time            `json:"last_heartbeat_at"`
}

// ViolationRequest reports an anti-cheat observation from the candidate client.
type ViolationRequest struct {
	Type    string `json:"type" validate:"required,max=64"`
	Details string `json:"details" validate:"omitempty,max=1000"`
}

// ViolationResponse reports the counters after a violation report.
type ViolationResponse struct {
	Status      models.AttemptStatus `json:"status"`
	TabSwitches int                  `json:"tab_switches"`
	Limit       int                  `json:"limit"`
	Terminated  bool                 `json:"terminated"`
}

// NewCandidateQuestions strips answers and grader hints from a question set.
func NewCandidateQuestions(set models.QuestionSet) []CandidateQuestion {
	questions := make([]CandidateQuestion, 0, len(set))
	for index, question := range set {
		item := CandidateQuestion{
			ID:       question.EffectiveID(index),
			Type:     question.Type,
			Question: question.Prompt,
			Points:   question.Points,
		}
		switch {
		case question.MultipleChoice != nil:
			item.Options = append([]string(nil), question.MultipleChoice.Options...)
		case question.ShortAnswer != nil:
			item.MinWords = question.ShortAnswer.MinWords
		case question.Code != nil:
			item.Language = question.Code.Language
			item.StarterCode = question.Code.StarterCode
		}
		questions = append(questions, item)
	}
	return questions
}

// NewCandidateAttempt converts an Attempt into the candidate view.
func NewCandidateAttempt(model models.Attempt) CandidateAttempt {
	view := CandidateAttempt{
		ID:               model.ID,
		CandidateName:    model.CandidateName,
		Status:           model.Status,
		IsPresentation:   model.IsPresentation,
		ExpiresAt:        model.ExpiresAt,
		StartedAt:        model.StartedAt,
		CompletedAt:      model.CompletedAt,
		TabSwitches:      model.TabSwitches,
		PresentationLink: model.PresentationLink,
	}
	if answers, err := model.SubmittedAnswers(); err == nil && len(answers) > 0 {
		view.Answers = answers
	}
	if model.Status == models.AttemptStatusCompleted {
		view.Score = model.Score
		view.MaxScore = model.MaxScore
		view.Percentage = model.Percentage
		view.Passed = model.Passed
	}
	return view
}

// NewSubmitResponse reports an attempt's grading outcome.
func NewSubmitResponse(model models.Attempt) SubmitResponse {
	return SubmitResponse{
		AttemptID:        model.ID,
		Status:           model.Status,
		Score:            model.Score,
		MaxScore:         model.MaxScore,
		Percentage:       model.Percentage,
		Passed:           model.Passed,
		NeedsReview:      model.Status == models.AttemptStatusNeedsReview,
		TimeSpentSeconds: model.TimeSpentSeconds,
		CompletedAt:      model.CompletedAt,
	}
}
