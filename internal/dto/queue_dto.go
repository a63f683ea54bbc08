package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// AIJobCreateRequest enqueues a question generation job.
type AIJobCreateRequest struct {
	Profession      string   `json:"profession" validate:"required,min=2,max=255"`
	Skills          []string `json:"skills" validate:"omitempty,max=50,dive,min=1,max=100"`
	CVSummary       string   `json:"cv_summary" validate:"omitempty,max=20000"`
	QuestionCount   int      `json:"question_count" validate:"omitempty,gte=1,lte=100"`
	Persist         bool     `json:"persist"`
	Title           *string  `json:"title" validate:"omitempty,min=3,max=255"`
	Description     *string  `json:"description" validate:"omitempty,max=5000"`
	DurationMinutes *int     `json:"duration_minutes" validate:"omitempty,gte=1,lte=600"`
	PassingScore    *float64 `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
}

// AIJobParams is the stored generation input of a job.
type AIJobParams struct {
	Profession    string   `json:"profession"`
	Skills        []string `json:"skills,omitempty"`
	CVSummary     string   `json:"cv_summary,omitempty"`
	QuestionCount int      `json:"question_count"`
}

// AIJobResponse reports the state of a generation job.
type AIJobResponse struct {
	ID          string             `json:"id"`
	Status      models.QueueStatus `json:"status"`
	Attempts    int                `json:"attempts"`
	Persist     bool               `json:"persist"`
	Params      json.RawMessage    `json:"params,omitempty"`
	Result      json.RawMessage    `json:"result,omitempty"`
	Logs        []string           `json:"logs,omitempty"`
	TestID      *string            `json:"test_id,omitempty"`
	LastError   *string            `json:"last_error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ClaimedAt   *time.Time         `json:"claimed_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	CreatedBy   *string            `json:"created_by,omitempty"`
	MaxAttempts int                `json:"max_attempts"`
}

// NotificationCreateRequest enqueues an arbitrary outbound event.
type NotificationCreateRequest struct {
	EventType string          `json:"event_type" validate:"required,min=1,max=64"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	TargetURL string          `json:"target_url" validate:"omitempty,url,max=2048"`
}

// NotificationResponse reports the delivery state of an outbox entry.
type NotificationResponse struct {
	ID           string             `json:"id"`
	EventType    string             `json:"event_type"`
	TargetURL    string             `json:"target_url"`
	Status       models.QueueStatus `json:"status"`
	Attempts     int                `json:"attempts"`
	MaxAttempts  int                `json:"max_attempts"`
	NextRetryAt  *time.Time         `json:"next_retry_at,omitempty"`
	LastError    *string            `json:"last_error,omitempty"`
	HTTPStatus   *int               `json:"http_status,omitempty"`
	ResponseBody *string            `json:"response_body,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// NewAIJobResponse converts an AIJob model into a DTO.
func NewAIJobResponse(model models.AIJob) AIJobResponse {
	response := AIJobResponse{
		ID:          model.ID,
		Status:      model.Status,
		Attempts:    model.Attempts,
		MaxAttempts: model.MaxAttempts,
		Persist:     model.Persist,
		TestID:      model.TestID,
		LastError:   model.LastError,
		CreatedAt:   model.CreatedAt,
		ClaimedAt:   model.ClaimedAt,
		FinishedAt:  model.FinishedAt,
		CreatedBy:   model.CreatedBy,
	}
	if len(model.Params) > 0 {
		response.Params = json.RawMessage(model.Params)
	}
	if len(model.Result) > 0 {
		response.Result = json.RawMessage(model.Result)
	}
	if len(model.Logs) > 0 {
		var logs []string
		if err := json.Unmarshal(model.Logs, &logs); err == nil {
			response.Logs = logs
		}
	}
	return response
}

// NewNotificationResponse converts an OutboxEntry model into a DTO.
func NewNotificationResponse(model models.OutboxEntry) NotificationResponse {
	return NotificationResponse{
		ID:           model.ID,
		EventType:    model.EventType,
		TargetURL:    model.TargetURL,
		Status:       model.Status,
		Attempts:     model.Attempts,
		MaxAttempts:  model.MaxAttempts,
		NextRetryAt:  model.NextRetryAt,
		LastError:    model.LastError,
		HTTPStatus:   model.HTTPStatus,
		ResponseBody: model.ResponseBody,
		CreatedAt:    model.CreatedAt,
		FinishedAt:   model.FinishedAt,
	}
}
