package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QueueStatus enumerates the states of a queued work item.
type QueueStatus string

const (
	// QueueStatusPending is waiting for a worker.
	QueueStatusPending QueueStatus = "pending"
	// QueueStatusRunning is claimed by exactly one worker.
	QueueStatusRunning QueueStatus = "running"
	// QueueStatusSucceeded finished successfully.
	QueueStatusSucceeded QueueStatus = "succeeded"
	// QueueStatusFailed failed; it is retried only while attempts < max_attempts and next_retry_at is set.
	QueueStatusFailed QueueStatus = "failed"
)

// QueueFields is embedded by every table-backed queue item.
type QueueFields struct {
	Status      QueueStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts    int         `gorm:"not null" json:"attempts"`
	MaxAttempts int         `gorm:"not null" json:"max_attempts"`
	NextRetryAt *time.Time  `gorm:"index" json:"next_retry_at,omitempty"`
	LastError   *string     `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt   *time.Time  `json:"claimed_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Event types delivered through the notification outbox.
const (
	EventTestAssigned          = "test_assigned"
	EventTestCompleted         = "test_completed"
	EventPresentationSubmitted = "presentation_submitted"
	EventDeadlineWarning       = "deadline_warning"
	EventAttemptGraded         = "attempt_graded"
)

// OutboxEntry is an outbound event waiting for at-least-once delivery.
type OutboxEntry struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	EventType    string         `gorm:"size:64;not null;index" json:"event_type"`
	TargetURL    string         `gorm:"size:2048" json:"target_url"`
	Payload      datatypes.JSON `gorm:"type:json" json:"payload"`
	HTTPStatus   *int           `json:"http_status,omitempty"`
	ResponseBody *string        `gorm:"type:text" json:"response_body,omitempty"`
	QueueFields
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName names the delivery log table.
func (OutboxEntry) TableName() string {
	return "webhook_deliveries"
}

// BeforeCreate assigns an identifier and the initial queue state.
func (e *OutboxEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = QueueStatusPending
	}
	return nil
}

// AIJob is a queued question generation request.
type AIJob struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	Params          datatypes.JSON `gorm:"type:json" json:"params"`
	Persist         bool           `gorm:"not null" json:"persist"`
	Title           *string        `gorm:"size:255" json:"title,omitempty"`
	Description     *string        `gorm:"type:text" json:"description,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	PassingScore    *float64       `gorm:"type:numeric(5,2)" json:"passing_score,omitempty"`
	Result          datatypes.JSON `gorm:"type:json" json:"result,omitempty"`
	Logs            datatypes.JSON `gorm:"type:json" json:"logs,omitempty"`
	TestID          *string        `gorm:"size:36" json:"test_id,omitempty"`
	CreatedBy       *string        `gorm:"size:64" json:"created_by,omitempty"`
	QueueFields
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName names the AI job table.
func (AIJob) TableName() string {
	return "ai_jobs"
}

// BeforeCreate assigns an identifier and the initial queue state. AI jobs run once.
func (j *AIJob) BeforeCreate(_ *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = QueueStatusPending
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 1
	}
	return nil
}
