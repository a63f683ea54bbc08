package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// QuestionType discriminates the detail payload carried by a Question.
type QuestionType string

const (
	// QuestionTypeMultipleChoice is a single-correct-option question graded automatically.
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	// QuestionTypeShortAnswer is a free-text question that requires a human grader.
	QuestionTypeShortAnswer QuestionType = "short_answer"
	// QuestionTypeCode is a coding exercise. Nothing executes candidate code, so it is never auto-graded.
	QuestionTypeCode QuestionType = "code"
)

// DefaultQuestionPoints applies when a question omits its point value.
const DefaultQuestionPoints = 1

// Question is one entry of a test's question set. Exactly one of the detail
// pointers is set for known types; unknown or malformed entries keep their raw
// JSON so a snapshot round-trips unchanged.
type Question struct {
	ID          int
	Type        QuestionType
	Prompt      string
	Points      int
	Explanation string

	MultipleChoice *MultipleChoiceDetails
	ShortAnswer    *ShortAnswerDetails
	Code           *CodeDetails

	raw json.RawMessage
}

// MultipleChoiceDetails holds the options and the index of the correct one.
type MultipleChoiceDetails struct {
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
}

// ShortAnswerDetails holds hints for human graders.
type ShortAnswerDetails struct {
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
	MinWords         int      `json:"min_words,omitempty"`
	SampleAnswer     string   `json:"sample_answer,omitempty"`
}

// CodeDetails describes a coding exercise.
type CodeDetails struct {
	Language    string         `json:"language"`
	StarterCode string         `json:"starter_code,omitempty"`
	TestCases   []CodeTestCase `json:"test_cases,omitempty"`
}

// CodeTestCase is one input/output pair of a coding exercise.
type CodeTestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

type questionEnvelope struct {
	ID          int          `json:"id"`
	Type        QuestionType `json:"type"`
	Question    string       `json:"question"`
	Points      *int         `json:"points"`
	Explanation string       `json:"explanation,omitempty"`
}

// UnmarshalJSON decodes the flat wire shape keyed by the "type" discriminant.
// Details that fail to decode leave the question without a variant, which the
// grading engine treats as unsupported.
func (q *Question) UnmarshalJSON(data []byte) error {
	var envelope questionEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode question: %w", err)
	}

	*q = Question{
		ID:          envelope.ID,
		Type:        envelope.Type,
		Prompt:      envelope.Question,
		Points:      DefaultQuestionPoints,
		Explanation: envelope.Explanation,
		raw:         append(json.RawMessage(nil), data...),
	}
	if envelope.Points != nil {
		q.Points = *envelope.Points
	}

	switch envelope.Type {
	case QuestionTypeMultipleChoice:
		var details MultipleChoiceDetails
		if err := json.Unmarshal(data, &details); err == nil && len(details.Options) > 0 {
			q.MultipleChoice = &details
		}
	case QuestionTypeShortAnswer:
		var details ShortAnswerDetails
		if err := json.Unmarshal(data, &details); err == nil {
			q.ShortAnswer = &details
		}
	case QuestionTypeCode:
		var details CodeDetails
		if err := json.Unmarshal(data, &details); err == nil {
			q.Code = &details
		}
	}

	return nil
}

// MarshalJSON flattens the envelope and the active variant into one object.
func (q Question) MarshalJSON() ([]byte, error) {
	var details interface{}
	switch {
	case q.MultipleChoice != nil:
		details = q.MultipleChoice
	case q.ShortAnswer != nil:
		details = q.ShortAnswer
	case q.Code != nil:
		details = q.Code
	default:
		if len(q.raw) > 0 {
			return q.raw, nil
		}
	}

	fields := map[string]interface{}{}
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(encoded, &fields); err != nil {
			return nil, err
		}
	}

	fields["id"] = q.ID
	fields["type"] = q.Type
	fields["question"] = q.Prompt
	fields["points"] = q.Points
	if q.Explanation != "" {
		fields["explanation"] = q.Explanation
	}

	return json.Marshal(fields)
}

// EffectiveID returns the question identifier, falling back to its one-based position.
func (q Question) EffectiveID(index int) int {
	if q.ID > 0 {
		return q.ID
	}
	return index + 1
}

// QuestionSet is an ordered list of questions.
type QuestionSet []Question

// ParseQuestionSet decodes a stored question list. A JSON object (the
// presentation snapshot shape) yields an empty set, and entries that are not
// objects are kept as unsupported questions.
func ParseQuestionSet(data []byte) (QuestionSet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '{' {
		return QuestionSet{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}

	set := make(QuestionSet, 0, len(items))
	for _, item := range items {
		var question Question
		if err := json.Unmarshal(item, &question); err != nil {
			question = Question{Type: "invalid", raw: append(json.RawMessage(nil), item...)}
		}
		set = append(set, question)
	}

	return set, nil
}

// SubmittedAnswer is one candidate answer keyed by question id.
type SubmittedAnswer struct {
	QuestionID       int             `json:"question_id"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds *int            `json:"time_spent_seconds,omitempty"`
	MarkedForReview  bool            `json:"marked_for_review,omitempty"`
	AnsweredAt       *time.Time      `json:"answered_at,omitempty"`
}

// ErrInvalidAnswer indicates an answer value cannot be interpreted for its question type.
var ErrInvalidAnswer = errors.New("invalid answer value")

// SelectedOption extracts the chosen option index from a multiple choice answer.
// Accepted shapes are a bare number, a numeric string, or {"selected": n}.
func (a SubmittedAnswer) SelectedOption() (int, error) {
	trimmed := bytes.TrimSpace(a.Answer)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, ErrInvalidAnswer
	}

	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return wholeIndex(number)
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		var parsed float64
		if _, scanErr := fmt.Sscanf(text, "%g", &parsed); scanErr == nil {
			return wholeIndex(parsed)
		}
		return 0, ErrInvalidAnswer
	}

	var wrapped struct {
		Selected *float64 `json:"selected"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Selected != nil {
		return wholeIndex(*wrapped.Selected)
	}

	return 0, ErrInvalidAnswer
}

func wholeIndex(value float64) (int, error) {
	if value < 0 || value != float64(int(value)) {
		return 0, ErrInvalidAnswer
	}
	return int(value), nil
}

// GradedAnswer records the scoring outcome for one question of an attempt.
type GradedAnswer struct {
	QuestionID          int             `json:"question_id"`
	QuestionType        QuestionType    `json:"question_type"`
	Question            string          `json:"question"`
	CandidateAnswer     json.RawMessage `json:"candidate_answer,omitempty"`
	CandidateAnswerText string          `json:"candidate_answer_text,omitempty"`
	CorrectAnswer       json.RawMessage `json:"correct_answer,omitempty"`
	CorrectAnswerText   string          `json:"correct_answer_text,omitempty"`
	PointsEarned        float64         `json:"points_earned"`
	PointsPossible      float64         `json:"points_possible"`
	IsCorrect           *bool           `json:"is_correct"`
	NeedsReview         bool            `json:"needs_review"`
	Unsupported         bool            `json:"unsupported,omitempty"`
	GraderComment       string          `json:"grader_comment,omitempty"`
	GradedBy            string          `json:"graded_by,omitempty"`
	GradedAt            *time.Time      `json:"graded_at,omitempty"`
}
