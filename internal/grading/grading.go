// Package grading scores submitted answers against a frozen question set.
// Everything here is deterministic and free of side effects; callers persist
// the result.
package grading

import (
	"encoding/json"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// passTolerance absorbs float noise when comparing a percentage to a threshold.
const passTolerance = 1e-9

// Result is the aggregate outcome of grading one attempt.
type Result struct {
	Earned      float64
	MaxPossible float64
	Answers     []models.GradedAnswer
	NeedsReview bool
}

// Percentage returns 100 * earned / max, or 0 when nothing can be earned.
func (r Result) Percentage() float64 {
	if r.MaxPossible <= 0 {
		return 0
	}
	return models.RoundScore(r.Earned / r.MaxPossible * 100)
}

// Passed compares the percentage against a passing threshold.
func (r Result) Passed(passingScore float64) bool {
	return Passed(r.Percentage(), passingScore)
}

// Passed reports whether a percentage meets the passing threshold.
func Passed(percentage, passingScore float64) bool {
	return percentage+passTolerance >= passingScore
}

// Grade scores every question of the set. Each question contributes its
// points to the maximum whether or not it was answered.
func Grade(questions models.QuestionSet, answers []models.SubmittedAnswer) Result {
	byQuestion := make(map[int]models.SubmittedAnswer, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}

	graded := make([]models.GradedAnswer, 0, len(questions))
	for index, question := range questions {
		id := question.EffectiveID(index)
		answer, answered := byQuestion[id]
		graded = append(graded, gradeQuestion(id, question, answer, answered))
	}

	return Recompute(graded)
}

// Recompute derives the aggregate totals from graded answers, which is how
// manual grading updates an attempt.
func Recompute(graded []models.GradedAnswer) Result {
	result := Result{Answers: graded}
	for _, answer := range graded {
		result.Earned += answer.PointsEarned
		result.MaxPossible += answer.PointsPossible
		if answer.NeedsReview {
			result.NeedsReview = true
		}
	}
	result.Earned = models.RoundScore(result.Earned)
	result.MaxPossible = models.RoundScore(result.MaxPossible)
	return result
}

func gradeQuestion(id int, question models.Question, answer models.SubmittedAnswer, answered bool) models.GradedAnswer {
	points := float64(question.Points)
	if points < 0 {
		points = 0
	}

	graded := models.GradedAnswer{
		QuestionID:     id,
		QuestionType:   question.Type,
		Question:       question.Prompt,
		PointsPossible: points,
	}
	if answered {
		graded.CandidateAnswer = answer.Answer
	}

	switch {
	case question.MultipleChoice != nil:
		gradeMultipleChoice(&graded, question.MultipleChoice, answer, answered)
	case question.ShortAnswer != nil:
		graded.NeedsReview = true
	default:
		graded.Unsupported = true
		graded.IsCorrect = boolPtr(false)
	}

	return graded
}

func gradeMultipleChoice(graded *models.GradedAnswer, details *models.MultipleChoiceDetails, answer models.SubmittedAnswer, answered bool) {
	correct := details.CorrectAnswer
	if encoded, err := json.Marshal(correct); err == nil {
		graded.CorrectAnswer = encoded
	}
	if correct >= 0 && correct < len(details.Options) {
		graded.CorrectAnswerText = details.Options[correct]
	}

	graded.IsCorrect = boolPtr(false)
	if !answered {
		return
	}

	selected, err := answer.SelectedOption()
	if err != nil {
		return
	}
	if selected < len(details.Options) {
		graded.CandidateAnswerText = details.Options[selected]
	}

	if selected == correct && correct < len(details.Options) {
		graded.IsCorrect = boolPtr(true)
		graded.PointsEarned = graded.PointsPossible
	}
}

func boolPtr(value bool) *bool {
	return &value
}
