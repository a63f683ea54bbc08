package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuestionsEnvelope(t *testing.T) {
	content := `{"questions":[
		{"type":"multiple_choice","question":"What is 2+2?","points":2,"options":["3","4"],"correct_answer":1},
		{"question":"Missing options","options":["only"],"correct_answer":0},
		{"question":"","options":["a","b"],"correct_answer":0},
		{"question":"Bad index","options":["a","b"],"correct_answer":5},
		{"question":"Defaults","options":["a","b","c"],"correct_answer":2}
	]}`

	questions, logs, err := ParseQuestions(content, 10)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	require.Equal(t, 2, questions[0].Points)
	require.Equal(t, "multiple_choice", questions[1].Type)
	require.Equal(t, 1, questions[1].Points)
	require.Len(t, logs, 3)
}

func TestParseQuestionsBareArrayInFence(t *testing.T) {
	content := "```json\n[{\"question\":\"Q1\",\"options\":[\"a\",\"b\"],\"correct_answer\":0},{\"question\":\"Q2\",\"options\":[\"a\",\"b\"],\"correct_answer\":1}]\n```"

	questions, logs, err := ParseQuestions(content, 1)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, "Q1", questions[0].Question)
	require.Len(t, logs, 1)
	require.True(t, strings.HasPrefix(logs[0], "trimmed"))
}

func TestParseQuestionsRejectsGarbage(t *testing.T) {
	_, _, err := ParseQuestions("not json", 5)
	require.Error(t, err)

	_, _, err = ParseQuestions("   ", 5)
	require.Error(t, err)
}

func TestBuildGenerationPromptIncludesProfile(t *testing.T) {
	prompt := buildGenerationPrompt(GenerationRequest{
		Profession: "Backend Engineer",
		Skills:     []string{"Go", "PostgreSQL"},
		CVSummary:  "Eight years building APIs",
		Count:      6,
	})

	require.Contains(t, prompt, "Backend Engineer")
	require.Contains(t, prompt, "Go, PostgreSQL")
	require.Contains(t, prompt, "Eight years building APIs")
	require.Contains(t, prompt, "exactly 6 questions")
}
