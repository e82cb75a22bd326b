// Package gemini implements the single external text-generation contract of
// the pipeline: a code review prompt goes in, a numeric quality score comes
// out. Callers wrap every invocation in circuit breaker plus retry; this
// package only classifies its own failures.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/config"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Reviewer errors.
var (
	ErrInvalidConfig = errors.New("invalid reviewer configuration")

	// ErrInvalidScore marks a non-numeric or out-of-range model response.
	// Permanent: retrying the same prompt is unlikely to help, so callers
	// degrade the qualitative score to 0 instead.
	ErrInvalidScore = errors.New("invalid score in model response")

	ErrEmptyCode = errors.New("code to review cannot be empty")
)

const reviewPromptTemplate = `You are reviewing code written during a timed technical interview.
Rate the overall quality of the following solution on a scale from 0 to 100,
considering correctness, clarity, naming, and structure. Respond with only
the number.

%s`

// Reviewer scores candidate code via the Gemini API.
type Reviewer struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewReviewer creates a Reviewer from the LLM configuration.
func NewReviewer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Reviewer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Reviewer{
		logger: logger.With("component", "gemini_reviewer"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Review asks the model for a 0-100 quality score for the given code.
// Transport failures are classified transient; malformed responses are
// permanent ErrInvalidScore.
func (r *Reviewer) Review(ctx context.Context, code string) (float64, error) {
	if strings.TrimSpace(code) == "" {
		return 0, ErrEmptyCode
	}

	prompt := fmt.Sprintf(reviewPromptTemplate, code)
	r.logger.DebugContext(ctx, "requesting qualitative code review",
		"model", r.model,
		"code_length", len(code))

	resp, err := r.client.Models.GenerateContent(ctx, r.model, genai.Text(prompt), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: gemini call failed: %v", domain.ErrTransient, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return 0, fmt.Errorf("%w: empty response", ErrInvalidScore)
	}

	score, err := parseScore(text)
	if err != nil {
		r.logger.WarnContext(ctx, "model returned unusable review score",
			"response", text,
			"error", err)
		return 0, err
	}

	r.logger.DebugContext(ctx, "qualitative review complete", "score", score)
	return score, nil
}

// parseScore extracts the leading number from the model response and bounds
// it to 0-100.
func parseScore(text string) (float64, error) {
	// Models occasionally wrap the number in prose despite instructions;
	// take the first numeric token.
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	})
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScore, text)
	}

	score, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScore, text)
	}
	if score < 0 || score > 100 {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidScore, score)
	}
	return score, nil
}
