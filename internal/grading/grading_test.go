package grading

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skilltest-api/internal/models"
)

func mustQuestions(t *testing.T, raw string) models.QuestionSet {
	t.Helper()
	set, err := models.ParseQuestionSet([]byte(raw))
	require.NoError(t, err)
	return set
}

func answer(id int, raw string) models.SubmittedAnswer {
	return models.SubmittedAnswer{QuestionID: id, Answer: json.RawMessage(raw)}
}

func TestGradeMultipleChoiceCorrect(t *testing.T) {
	questions := mustQuestions(t, `[{"id":1,"type":"multiple_choice","question":"Capital of France?","options":["Berlin","Paris"],"correct_answer":1}]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(1, `1`)})

	require.Equal(t, 1.0, result.Earned)
	require.Equal(t, 1.0, result.MaxPossible)
	require.Equal(t, 100.0, result.Percentage())
	require.False(t, result.NeedsReview)
	require.True(t, result.Passed(50))
	require.Len(t, result.Answers, 1)
	require.True(t, *result.Answers[0].IsCorrect)
	require.Equal(t, "Paris", result.Answers[0].CandidateAnswerText)
	require.Equal(t, "Paris", result.Answers[0].CorrectAnswerText)
}

func TestGradeUnansweredQuestionsStillCountTowardsMax(t *testing.T) {
	questions := mustQuestions(t, `[
		{"id":1,"type":"multiple_choice","question":"a","points":2,"options":["x","y"],"correct_answer":0},
		{"id":2,"type":"multiple_choice","question":"b","points":3,"options":["x","y"],"correct_answer":1}
	]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(1, `0`)})

	require.Equal(t, 2.0, result.Earned)
	require.Equal(t, 5.0, result.MaxPossible)
	require.Equal(t, 40.0, result.Percentage())
	require.False(t, result.Passed(70))
	require.False(t, *result.Answers[1].IsCorrect)
	require.Nil(t, result.Answers[1].CandidateAnswer)
}

func TestGradeShortAnswerNeedsReview(t *testing.T) {
	questions := mustQuestions(t, `[
		{"id":1,"type":"multiple_choice","question":"a","options":["x","y"],"correct_answer":0},
		{"id":2,"type":"short_answer","question":"Describe your last project"}
	]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(1, `0`), answer(2, `"a long story"`)})

	require.True(t, result.NeedsReview)
	require.Equal(t, 1.0, result.Earned)
	require.Equal(t, 2.0, result.MaxPossible)
	require.True(t, result.Answers[1].NeedsReview)
	require.Nil(t, result.Answers[1].IsCorrect)
}

func TestGradeUnsupportedTypesAreNotFlaggedForReview(t *testing.T) {
	questions := mustQuestions(t, `[
		{"id":1,"type":"code","question":"FizzBuzz","language":"go"},
		{"id":2,"type":"hologram","question":"???"}
	]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(1, `"package main"`)})

	require.False(t, result.NeedsReview)
	require.Equal(t, 0.0, result.Earned)
	require.Equal(t, 2.0, result.MaxPossible)
	for _, graded := range result.Answers {
		require.True(t, graded.Unsupported)
		require.False(t, graded.NeedsReview)
		require.False(t, *graded.IsCorrect)
	}
}

func TestGradeMalformedAnswerScoresZero(t *testing.T) {
	questions := mustQuestions(t, `[{"id":1,"type":"multiple_choice","question":"a","options":["x","y"],"correct_answer":0}]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(1, `{"oops":true}`)})

	require.Equal(t, 0.0, result.Earned)
	require.False(t, *result.Answers[0].IsCorrect)
}

func TestGradeFallsBackToPositionalIDs(t *testing.T) {
	questions := mustQuestions(t, `[
		{"type":"multiple_choice","question":"a","options":["x","y"],"correct_answer":0},
		{"type":"multiple_choice","question":"b","options":["x","y"],"correct_answer":1}
	]`)

	result := Grade(questions, []models.SubmittedAnswer{answer(2, `1`)})

	require.Equal(t, 1.0, result.Earned)
	require.Equal(t, 2, result.Answers[1].QuestionID)
}

func TestGradeEmptyQuestionSet(t *testing.T) {
	result := Grade(models.QuestionSet{}, nil)
	require.Equal(t, 0.0, result.Percentage())
	require.False(t, result.Passed(1))
	require.True(t, result.Passed(0))
}

func TestRecomputeAfterManualGrade(t *testing.T) {
	questions := mustQuestions(t, `[{"id":1,"type":"short_answer","question":"Why?","points":4}]`)
	result := Grade(questions, []models.SubmittedAnswer{answer(1, `"because"`)})
	require.True(t, result.NeedsReview)

	graded := result.Answers
	correct := true
	graded[0].IsCorrect = &correct
	graded[0].PointsEarned = graded[0].PointsPossible
	graded[0].NeedsReview = false

	updated := Recompute(graded)
	require.False(t, updated.NeedsReview)
	require.Equal(t, 4.0, updated.Earned)
	require.Equal(t, 100.0, updated.Percentage())
}

func TestEarnedNeverExceedsMax(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iteration := 0; iteration < 200; iteration++ {
		count := rng.Intn(8)
		raw := "["
		answers := make([]models.SubmittedAnswer, 0, count)
		for i := 0; i < count; i++ {
			if i > 0 {
				raw += ","
			}
			raw += fmt.Sprintf(`{"id":%d,"type":"multiple_choice","question":"q","points":%d,"options":["a","b","c"],"correct_answer":%d}`, i+1, rng.Intn(5), rng.Intn(3))
			answers = append(answers, answer(i+1, fmt.Sprintf("%d", rng.Intn(4))))
		}
		raw += "]"

		result := Grade(mustQuestions(t, raw), answers)
		require.LessOrEqual(t, result.Earned, result.MaxPossible)
		require.GreaterOrEqual(t, result.Percentage(), 0.0)
		require.LessOrEqual(t, result.Percentage(), 100.0)
	}
}
