// Package analysis asks an external model for a food quality verdict on a still.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/model"
)

var (
	ErrNotConfigured = errors.New("analysis backend not configured")
	ErrBadResponse   = errors.New("unreadable analysis response")
)

// FailedText is reported when the model answers without any explanation.
const FailedText = "Analysis failed"

type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*model.Assessment, error)
}

// New returns the Gemini analyzer, or the demo analyzer when demo mode is on or
// no API key is set.
func New(config *config.Config, logger *logger.Logger) Analyzer {
	if config.DemoMode {
		logger.Info("Analysis running in demo mode")
		return NewDemo(nil)
	}
	if config.GeminiAPIKey == "" {
		logger.Warning("GEMINI_API_KEY is not set, falling back to demo analysis")
		return NewDemo(nil)
	}
	return NewGemini(config.GeminiAPIKey, config.GeminiModel, nil)
}

type verdict struct {
	Score json.RawMessage `json:"score"`
	Text  string          `json:"text"`
	Food  string          `json:"food"`
}

// ParseAssessment reads the {"score", "text", "food"} object a model replied with,
// tolerating markdown code fences around it. A missing or non-numeric score counts as 0.
func ParseAssessment(reply string) (*model.Assessment, error) {
	clean := strings.NewReplacer("```json", "", "```", "").Replace(reply)
	clean = strings.TrimSpace(clean)

	var v verdict
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	score := 0
	var f float64
	if err := json.Unmarshal(v.Score, &f); err == nil {
		score = int(f + 0.5)
	}
	score = min(max(score, 0), 100)

	text := strings.TrimSpace(v.Text)
	if text == "" {
		text = FailedText
	}

	return &model.Assessment{
		Score:    score,
		Text:     text,
		FoodName: strings.TrimSpace(v.Food),
		Grade:    model.GradeFor(score),
	}, nil
}
