package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuestionSetDecodesVariants(t *testing.T) {
	raw := []byte(`[
		{"id": 1, "type": "multiple_choice", "question": "2+2?", "points": 2, "options": ["3", "4"], "correct_answer": 1},
		{"type": "short_answer", "question": "Explain goroutines", "expected_keywords": ["scheduler"]},
		{"id": 7, "type": "code", "question": "Reverse a list", "language": "go"},
		{"id": 8, "type": "drawing", "question": "Sketch it", "canvas": true}
	]`)

	set, err := ParseQuestionSet(raw)
	require.NoError(t, err)
	require.Len(t, set, 4)

	require.NotNil(t, set[0].MultipleChoice)
	require.Equal(t, 1, set[0].MultipleChoice.CorrectAnswer)
	require.Equal(t, 2, set[0].Points)

	require.NotNil(t, set[1].ShortAnswer)
	require.Equal(t, DefaultQuestionPoints, set[1].Points)
	require.Equal(t, 2, set[1].EffectiveID(1))

	require.NotNil(t, set[2].Code)
	require.Equal(t, "go", set[2].Code.Language)

	require.Nil(t, set[3].MultipleChoice)
	require.Nil(t, set[3].ShortAnswer)
	require.Nil(t, set[3].Code)

	encoded, err := json.Marshal(set[3])
	require.NoError(t, err)
	require.JSONEq(t, `{"id": 8, "type": "drawing", "question": "Sketch it", "canvas": true}`, string(encoded))
}

func TestParseQuestionSetKeepsMalformedEntries(t *testing.T) {
	set, err := ParseQuestionSet([]byte(`[42, {"id": 2, "type": "multiple_choice", "question": "no options"}]`))
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.Equal(t, QuestionType("invalid"), set[0].Type)
	require.Nil(t, set[1].MultipleChoice)
}

func TestParseQuestionSetPresentationSnapshot(t *testing.T) {
	set, err := ParseQuestionSet([]byte(`{"test_type": "presentation", "themes": ["Roadmap"]}`))
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestQuestionMarshalFlattensDetails(t *testing.T) {
	question := Question{
		ID:     3,
		Type:   QuestionTypeMultipleChoice,
		Prompt: "Pick one",
		Points: 1,
		MultipleChoice: &MultipleChoiceDetails{
			Options:       []string{"a", "b"},
			CorrectAnswer: 0,
		},
	}

	encoded, err := json.Marshal(question)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":3,"type":"multiple_choice","question":"Pick one","points":1,"options":["a","b"],"correct_answer":0}`, string(encoded))
}

func TestSubmittedAnswerSelectedOption(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "number", raw: `2`, want: 2},
		{name: "string", raw: `"1"`, want: 1},
		{name: "wrapped", raw: `{"selected": 3}`, want: 3},
		{name: "negative", raw: `-1`, wantErr: true},
		{name: "fraction", raw: `1.5`, wantErr: true},
		{name: "text", raw: `"blue"`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			selected, err := SubmittedAnswer{Answer: json.RawMessage(tc.raw)}.SelectedOption()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidAnswer)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, selected)
		})
	}
}
