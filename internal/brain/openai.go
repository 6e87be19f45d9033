package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/navi/internal/reliability"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var errEmptyCompletion = errors.New("completion returned no choices")

// OpenAIEngine calls the chat completions API. Retries are handled here
// rather than by the SDK so the backoff matches the rest of the daemon.
type OpenAIEngine struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxTokens    int64
	timeout      time.Duration
	policy       reliability.Policy
	logger       *slog.Logger
}

func NewOpenAIEngine(cfg Config, logger *slog.Logger) (*OpenAIEngine, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for the openai engine")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	e := &OpenAIEngine{
		client:       openai.NewClient(opts...),
		model:        strings.TrimSpace(cfg.Model),
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		maxTokens:    int64(cfg.MaxTokens),
		timeout:      cfg.Timeout,
		policy: reliability.Policy{
			Retries: cfg.Retries,
			Base:    400 * time.Millisecond,
			Cap:     3 * time.Second,
		},
		logger: logger.With("component", "brain", "model", cfg.Model),
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.systemPrompt == "" {
		e.systemPrompt = DefaultSystemPrompt
	}
	if e.maxTokens <= 0 {
		e.maxTokens = DefaultMaxTokens
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.policy.Retries < 0 {
		e.policy.Retries = 0
	}
	return e, nil
}

func (e *OpenAIEngine) Complete(ctx context.Context, prompt, contextDigest string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(e.systemPrompt),
	}
	if digest := strings.TrimSpace(contextDigest); digest != "" {
		messages = append(messages, openai.SystemMessage("What you know about the user:\n"+digest))
	}
	messages = append(messages, openai.UserMessage(strings.TrimSpace(prompt)))

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(e.model),
		Messages:  messages,
		MaxTokens: openai.Int(e.maxTokens),
	}

	var reply string
	err := reliability.Do(ctx, e.policy, isRetryable, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		resp, err := e.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			e.logger.Warn("completion attempt failed", "attempt", attempt+1, "error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return errEmptyCompletion
		}
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	return reply, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, errEmptyCompletion)
}
