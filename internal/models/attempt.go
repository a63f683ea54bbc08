package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptStatus enumerates the lifecycle states of a test attempt.
type AttemptStatus string

const (
	// AttemptStatusPending is an issued invitation that has not been started.
	AttemptStatusPending AttemptStatus = "pending"
	// AttemptStatusInProgress is a started attempt that accepts answers.
	AttemptStatusInProgress AttemptStatus = "in_progress"
	// AttemptStatusCompleted is a fully graded attempt.
	AttemptStatusCompleted AttemptStatus = "completed"
	// AttemptStatusNeedsReview is a submitted attempt waiting for a human grader.
	AttemptStatusNeedsReview AttemptStatus = "needs_review"
	// AttemptStatusTimeout is an attempt whose deadline passed before submission.
	AttemptStatusTimeout AttemptStatus = "timeout"
	// AttemptStatusEscaped is an attempt terminated by anti-cheat or abandonment.
	AttemptStatusEscaped AttemptStatus = "escaped"
)

// AttemptStatuses lists every status in lifecycle order.
var AttemptStatuses = []AttemptStatus{
	AttemptStatusPending,
	AttemptStatusInProgress,
	AttemptStatusCompleted,
	AttemptStatusNeedsReview,
	AttemptStatusTimeout,
	AttemptStatusEscaped,
}

// Valid reports whether the status belongs to the closed enumeration.
func (s AttemptStatus) Valid() bool {
	for _, status := range AttemptStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsOpen reports whether the candidate can still act on the attempt.
func (s AttemptStatus) IsOpen() bool {
	return s == AttemptStatusPending || s == AttemptStatusInProgress
}

// IsSubmitted reports whether the candidate already handed the attempt in.
func (s AttemptStatus) IsSubmitted() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusNeedsReview
}

// Attempt is one candidate's instance of one Test, addressed by its access token.
type Attempt struct {
	ID                  string  `gorm:"primaryKey;size:36" json:"id"`
	TestID              string  `gorm:"size:36;not null;index" json:"test_id"`
	CandidateName       string  `gorm:"size:255;not null" json:"candidate_name"`
	CandidateEmail      string  `gorm:"size:255;not null;index;uniqueIndex:idx_test_attempts_pending_email,where:status = 'pending'" json:"candidate_email"`
	CandidateExternalID *string `gorm:"size:128;index" json:"candidate_external_id,omitempty"`
	CandidatePhone      *string `gorm:"size:64" json:"candidate_phone,omitempty"`
	CandidateChatID     *int64  `json:"candidate_chat_id,omitempty"`

	AccessToken string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`

	QuestionsSnapshot  datatypes.JSON `gorm:"type:json" json:"-"`
	Answers            datatypes.JSON `gorm:"type:json" json:"answers,omitempty"`
	GradedAnswers      datatypes.JSON `gorm:"type:json" json:"graded_answers,omitempty"`
	Score              *float64       `gorm:"type:numeric(10,2)" json:"score"`
	MaxScore           *float64       `gorm:"type:numeric(10,2)" json:"max_score"`
	Percentage         *float64       `gorm:"type:numeric(10,2)" json:"percentage"`
	Passed             *bool          `json:"passed"`
	Status             AttemptStatus  `gorm:"size:32;not null;index" json:"status"`
	IsPresentation     bool           `gorm:"not null" json:"is_presentation"`
	TimeSpentSeconds   *int           `json:"time_spent_seconds,omitempty"`
	TabSwitches        int            `gorm:"not null" json:"tab_switches"`
	SuspiciousActivity datatypes.JSON `gorm:"type:json" json:"suspicious_activity,omitempty"`

	PresentationLink         *string    `gorm:"size:2048" json:"presentation_link,omitempty"`
	PresentationFilePath     *string    `gorm:"size:2048" json:"presentation_file_path,omitempty"`
	PresentationGrade        *float64   `gorm:"type:numeric(5,2)" json:"presentation_grade,omitempty"`
	PresentationGradeComment *string    `gorm:"type:text" json:"presentation_grade_comment,omitempty"`
	GradedBy                 *string    `gorm:"size:64" json:"graded_by,omitempty"`
	GradedAt                 *time.Time `json:"graded_at,omitempty"`

	Metadata         datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	DeadlineNotified bool              `gorm:"not null" json:"deadline_notified"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName keeps attempts apart from the tests table.
func (Attempt) TableName() string {
	return "test_attempts"
}

// BeforeCreate assigns an identifier.
func (a *Attempt) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the attempt deadline has passed at the given instant.
func (a Attempt) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Questions decodes the frozen question snapshot.
func (a Attempt) Questions() (QuestionSet, error) {
	return ParseQuestionSet(a.QuestionsSnapshot)
}

// SubmittedAnswers decodes the mutable answer snapshot.
func (a Attempt) SubmittedAnswers() ([]SubmittedAnswer, error) {
	answers := []SubmittedAnswer{}
	if len(a.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// GradedAnswerList decodes the graded answers.
func (a Attempt) GradedAnswerList() ([]GradedAnswer, error) {
	graded := []GradedAnswer{}
	if len(a.GradedAnswers) == 0 {
		return graded, nil
	}
	if err := json.Unmarshal(a.GradedAnswers, &graded); err != nil {
		return nil, err
	}
	return graded, nil
}

// ActivityLog decodes the anti-cheat activity entries.
func (a Attempt) ActivityLog() ([]ActivityEntry, error) {
	entries := []ActivityEntry{}
	if len(a.SuspiciousActivity) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(a.SuspiciousActivity, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ActivityEntry is one anti-cheat observation reported by the candidate client.
type ActivityEntry struct {
	Type       string    `json:"type"`
	Details    string    `json:"details,omitempty"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PresentationSnapshot is stored in place of questions for presentation tests.
type PresentationSnapshot struct {
	TestType  TestType        `json:"test_type"`
	Themes    json.RawMessage `json:"themes"`
	ExtraInfo string          `json:"extra_info,omitempty"`
}

// AnswerLog is an append-only audit row written on every answer save.
type AnswerLog struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	AttemptID        string         `gorm:"size:36;not null;index" json:"attempt_id"`
	QuestionID       int            `gorm:"not null" json:"question_id"`
	Answer           datatypes.JSON `gorm:"type:json" json:"answer"`
	TimeSpentSeconds *int           `json:"time_spent_seconds,omitempty"`
	MarkedForReview  bool           `gorm:"not null" json:"marked_for_review"`
	CreatedAt        time.Time      `json:"created_at"`
}

// BeforeCreate assigns an identifier.
func (l *AnswerLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// RoundScore rounds to the two decimal places stored for scores.
func RoundScore(value float64) float64 {
	return math.Round(value*100) / 100
}
