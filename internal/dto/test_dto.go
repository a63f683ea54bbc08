package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// TestCreateRequest is the staff payload for defining a test.
type TestCreateRequest struct {
	Title                 string                 `json:"title" validate:"required,min=3,max=255"`
	Description           string                 `json:"description" validate:"omitempty,max=5000"`
	Instructions          string                 `json:"instructions" validate:"omitempty,max=10000"`
	Questions             json.RawMessage        `json:"questions"`
	DurationMinutes       int                    `json:"duration_minutes" validate:"omitempty,gte=1,lte=600"`
	PassingScore          *float64               `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	TestType              string                 `json:"test_type" validate:"omitempty,oneof=question_based presentation"`
	PresentationThemes    json.RawMessage        `json:"presentation_themes"`
	PresentationExtraInfo string                 `json:"presentation_extra_info" validate:"omitempty,max=5000"`
	IsActive              *bool                  `json:"is_active"`
	AIMetadata            map[string]interface{} `json:"ai_metadata"`
}

// TestListRequest describes query filters for listing tests.
type TestListRequest struct {
	Page       int    `query:"page" validate:"omitempty,gte=1"`
	PageSize   int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
	Search     string `query:"search" validate:"omitempty,max=255"`
	TestType   string `query:"test_type" validate:"omitempty,oneof=question_based presentation"`
	ActiveOnly bool   `query:"active_only"`
}

// TestResponse is the staff view of a test, questions included.
type TestResponse struct {
	ID                    string                 `json:"id"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description"`
	Instructions          string                 `json:"instructions"`
	Questions             json.RawMessage        `json:"questions,omitempty"`
	QuestionCount         int                    `json:"question_count"`
	DurationMinutes       int                    `json:"duration_minutes"`
	PassingScore          float64                `json:"passing_score"`
	TestType              models.TestType        `json:"test_type"`
	PresentationThemes    json.RawMessage        `json:"presentation_themes,omitempty"`
	PresentationExtraInfo string                 `json:"presentation_extra_info,omitempty"`
	AIMetadata            map[string]interface{} `json:"ai_metadata,omitempty"`
	IsActive              bool                   `json:"is_active"`
	CreatedBy             *string                `json:"created_by,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// TestListResponse wraps a paginated test listing.
type TestListResponse struct {
	Items      []TestResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// TestSummary is the candidate-facing description of a test.
type TestSummary struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Instructions    string          `json:"instructions"`
	DurationMinutes int             `json:"duration_minutes"`
	PassingScore    float64         `json:"passing_score"`
	TestType        models.TestType `json:"test_type"`
}

// NewTestResponse converts a Test model into a DTO.
func NewTestResponse(model models.Test) TestResponse {
	response := TestResponse{
		ID:                    model.ID,
		Title:                 model.Title,
		Description:           model.Description,
		Instructions:          model.Instructions,
		DurationMinutes:       model.DurationMinutes,
		PassingScore:          model.PassingScore,
		TestType:              model.TestType,
		PresentationExtraInfo: model.PresentationExtraInfo,
		IsActive:              model.IsActive,
		CreatedBy:             model.CreatedBy,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
	if len(model.Questions) > 0 {
		response.Questions = json.RawMessage(model.Questions)
		if set, err := models.ParseQuestionSet(model.Questions); err == nil {
			response.QuestionCount = len(set)
		}
	}
	if len(model.PresentationThemes) > 0 {
		response.PresentationThemes = json.RawMessage(model.PresentationThemes)
	}
	if len(model.AIMetadata) > 0 {
		response.AIMetadata = map[string]interface{}(model.AIMetadata)
	}
	return response
}

// NewTestResponseSlice converts test models into DTOs.
func NewTestResponseSlice(items []models.Test) []TestResponse {
	responses := make([]TestResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewTestResponse(item))
	}
	return responses
}

// NewTestSummary builds the candidate-facing summary.
func NewTestSummary(model models.Test) TestSummary {
	return TestSummary{
		ID:              model.ID,
		Title:           model.Title,
		Description:     model.Description,
		Instructions:    model.Instructions,
		DurationMinutes: model.DurationMinutes,
		PassingScore:    model.PassingScore,
		TestType:        model.TestType,
	}
}
