package ai

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skilltest",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI question generation requests",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"provider", "model"})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skilltest",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI question generation failures",
	}, []string{"provider", "model"})
)

// GenerationRequest describes the candidate profile questions are generated for.
type GenerationRequest struct {
	Profession string
	Skills     []string
	CVSummary  string
	Count      int
}

// GeneratedQuestion is one multiple choice question produced by a model.
type GeneratedQuestion struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Points        int      `json:"points"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// GenerationResult holds the usable questions and a trace of what was discarded.
type GenerationResult struct {
	Questions []GeneratedQuestion
	Logs      []string
	Provider  string
	Model     string
}

// Generator produces a question set for a candidate profile.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}
