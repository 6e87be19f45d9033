// Package brain produces spoken replies from a user prompt and a memory
// context digest.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultModel        = "gpt-4o-mini"
	DefaultSystemPrompt = "You are Navi, a concise, helpful voice assistant. Answer in at most three short spoken sentences."
	DefaultMaxTokens    = 180
	DefaultRetries      = 2
	DefaultTimeout      = 20 * time.Second
)

// Engine is an opaque request/response completion backend.
type Engine interface {
	Complete(ctx context.Context, prompt, contextDigest string) (string, error)
}

// Config controls engine construction.
type Config struct {
	// Mode is "auto", "openai" or "mock". Auto uses OpenAI when an API key
	// is present and the mock otherwise.
	Mode         string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Retries      int
	Timeout      time.Duration
}

func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			logger.Warn("OPENAI_API_KEY not set, using mock completion engine")
			return NewMockEngine(), nil
		}
		return NewOpenAIEngine(cfg, logger)
	case "openai":
		return NewOpenAIEngine(cfg, logger)
	case "mock":
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported completion engine mode %q", cfg.Mode)
	}
}
