package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

func generatorSystemPrompt() string {
	return "You write hiring assessments. Respond with a JSON object {\"questions\": [...]} where every item has type " +
		"\"multiple_choice\", question, points (integer), options (4 strings), correct_answer (zero-based index) and a short explanation."
}

func buildGenerationPrompt(req GenerationRequest) string {
	builder := strings.Builder{}
	builder.WriteString("# Role\n")
	builder.WriteString(req.Profession)
	if len(req.Skills) > 0 {
		builder.WriteString("\n\n## Skills\n")
		builder.WriteString(strings.Join(req.Skills, ", "))
	}
	if strings.TrimSpace(req.CVSummary) != "" {
		builder.WriteString("\n\n## Candidate summary\n")
		builder.WriteString(req.CVSummary)
	}
	builder.WriteString(fmt.Sprintf("\n\nWrite exactly %d questions of increasing difficulty. Return JSON.", req.Count))
	return builder.String()
}

// ParseQuestions decodes a model response into usable questions. Both
// {"questions": [...]} and a bare array are accepted. Items without a prompt,
// with fewer than two options or with an out-of-range answer are dropped and
// reported in the returned logs.
func ParseQuestions(content string, limit int) ([]GeneratedQuestion, []string, error) {
	trimmed := bytes.TrimSpace([]byte(stripCodeFence(content)))
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("empty generation response")
	}

	var items []GeneratedQuestion
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, fmt.Errorf("parse generation json: %w", err)
		}
	} else {
		var envelope struct {
			Questions []GeneratedQuestion `json:"questions"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, nil, fmt.Errorf("parse generation json: %w", err)
		}
		items = envelope.Questions
	}

	var logs []string
	questions := make([]GeneratedQuestion, 0, len(items))
	for index, item := range items {
		item.Question = strings.TrimSpace(item.Question)
		switch {
		case item.Question == "":
			logs = append(logs, fmt.Sprintf("dropped question %d: empty prompt", index+1))
			continue
		case len(item.Options) < 2:
			logs = append(logs, fmt.Sprintf("dropped question %d: fewer than two options", index+1))
			continue
		case item.CorrectAnswer < 0 || item.CorrectAnswer >= len(item.Options):
			logs = append(logs, fmt.Sprintf("dropped question %d: correct_answer out of range", index+1))
			continue
		}
		if item.Type == "" {
			item.Type = "multiple_choice"
		}
		if item.Points <= 0 {
			item.Points = 1
		}
		questions = append(questions, item)
	}

	if limit > 0 && len(questions) > limit {
		logs = append(logs, fmt.Sprintf("trimmed %d extra questions", len(questions)-limit))
		questions = questions[:limit]
	}

	return questions, logs, nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
