package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

const providerGemini = "gemini"

// GeminiConfig defines configuration options for the Gemini generator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

// GeminiGenerator implements Generator against Google's Gemini models.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiGenerator dials the Gemini API. Close releases the client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(generatorSystemPrompt())}}

	return &GeminiGenerator{
		client: client,
		model:  model,
		name:   cfg.Model,
		tracer: otel.Tracer("github.com/noah-isme/skilltest-api/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_generator").Logger(),
	}, nil
}

// Generate asks Gemini for a question set and parses the JSON answer.
func (g *GeminiGenerator) Generate(parent context.Context, req GenerationRequest) (GenerationResult, error) {
	ctx, span := g.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", g.name),
		attribute.Int("ai.question_count", req.Count),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildGenerationPrompt(req)))
	generationDuration.WithLabelValues(providerGemini, g.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return GenerationResult{}, g.fail(span, fmt.Errorf("gemini generate: %w", err))
	}

	content := responseText(resp)
	if content == "" {
		return GenerationResult{}, g.fail(span, fmt.Errorf("no content returned from gemini"))
	}

	questions, logs, err := ParseQuestions(content, req.Count)
	if err != nil {
		return GenerationResult{}, g.fail(span, err)
	}

	if resp.UsageMetadata != nil {
		logs = append(logs, fmt.Sprintf("gemini usage: prompt=%d completion=%d", resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount))
	}
	span.SetAttributes(attribute.Int("ai.questions_returned", len(questions)))

	return GenerationResult{
		Questions: questions,
		Logs:      logs,
		Provider:  providerGemini,
		Model:     g.name,
	}, nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func (g *GeminiGenerator) fail(span trace.Span, err error) error {
	generationFailures.WithLabelValues(providerGemini, g.name).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.logger.Warn().Err(err).Msg("question generation failed")
	return err
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	builder := strings.Builder{}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		if builder.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}
