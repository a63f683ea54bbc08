package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestType distinguishes question-based assessments from presentation assignments.
type TestType string

const (
	// TestTypeQuestionBased is a timed question set.
	TestTypeQuestionBased TestType = "question_based"
	// TestTypePresentation asks the candidate to submit a presentation on one of several themes.
	TestTypePresentation TestType = "presentation"
)

const (
	// DefaultTestDurationMinutes is used when a test omits its duration.
	DefaultTestDurationMinutes = 45
	// DefaultPassingScore is the percentage needed to pass when a test omits one.
	DefaultPassingScore = 70.0
)

// Test is an assessment definition that attempts snapshot at invite time.
type Test struct {
	ID                    string            `gorm:"primaryKey;size:36" json:"id"`
	Title                 string            `gorm:"size:255;not null" json:"title"`
	Description           string            `gorm:"type:text" json:"description"`
	Instructions          string            `gorm:"type:text" json:"instructions"`
	Questions             datatypes.JSON    `gorm:"type:json" json:"questions"`
	DurationMinutes       int               `gorm:"not null" json:"duration_minutes"`
	PassingScore          float64           `gorm:"type:numeric(5,2);not null" json:"passing_score"`
	TestType              TestType          `gorm:"size:32;not null" json:"test_type"`
	PresentationThemes    datatypes.JSON    `gorm:"type:json" json:"presentation_themes,omitempty"`
	PresentationExtraInfo string            `gorm:"type:text" json:"presentation_extra_info,omitempty"`
	AIMetadata            datatypes.JSONMap `gorm:"type:json" json:"ai_metadata,omitempty"`
	IsActive              bool              `gorm:"not null" json:"is_active"`
	CreatedBy             *string           `gorm:"size:64" json:"created_by,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// BeforeCreate assigns an identifier and fills defaults.
func (t *Test) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DurationMinutes <= 0 {
		t.DurationMinutes = DefaultTestDurationMinutes
	}
	if t.TestType == "" {
		t.TestType = TestTypeQuestionBased
	}
	return nil
}

// IsPresentation reports whether the test is a presentation assignment.
func (t Test) IsPresentation() bool {
	return t.TestType == TestTypePresentation
}

// Duration returns the allotted time for one attempt.
func (t Test) Duration() time.Duration {
	minutes := t.DurationMinutes
	if minutes <= 0 {
		minutes = DefaultTestDurationMinutes
	}
	return time.Duration(minutes) * time.Minute
}
