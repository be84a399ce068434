package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/config"
)

const (
	defaultTextTimeout    = 30 * time.Second
	defaultTextRetryDelay = 500 * time.Millisecond
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1024
)

// TextGenerator produces free-form or structured text from a prompt
type TextGenerator interface {
	Generate(ctx context.Context, req *TextRequest) (string, error)
	GenerateStructured(ctx context.Context, req *TextRequest, schema json.RawMessage) (json.RawMessage, error)
	Model() string
}

// TextRequest is one chat completion call
type TextRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// TextClient talks to Groq through its OpenAI-compatible endpoint
type TextClient struct {
	client     openai.Client
	apiKey     string
	model      string
	timeout    time.Duration
	retryDelay time.Duration
}

// NewTextClient creates a new text generation client
func NewTextClient(cfg *config.GroqConfig) *TextClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTextTimeout
	}

	// Retries are owned by Generate so the SDK must not add its own.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout + 5*time.Second}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &TextClient{
		client:     openai.NewClient(opts...),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
		retryDelay: defaultTextRetryDelay,
	}
}

// Model returns the configured model identifier.
func (c *TextClient) Model() string {
	return c.model
}

// IsConfigured returns true if the client has valid configuration
func (c *TextClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Generate runs one chat completion, bounded by the per-call timeout and retried once.
func (c *TextClient) Generate(ctx context.Context, req *TextRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return "", apperr.Validation("text generate", "prompt is required")
	}
	if !c.IsConfigured() {
		return "", apperr.Upstream("text generate", errors.New("text provider is not configured"))
	}

	params := c.buildParams(req)
	attempt := 0
	content, err := retry.DoWithData(
		func() (string, error) {
			attempt++
			return c.complete(ctx, params)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableTextError),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("text generation retry", "model", c.model, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", apperr.Upstream("text generate", err)
	}
	slog.Debug("text generation complete", "model", c.model, "attempts", attempt, "chars", len(content))
	return content, nil
}

func (c *TextClient) buildParams(req *TextRequest) openai.ChatCompletionNewParams {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
}

func (c *TextClient) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", mapOpenAIError("groq", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion")
	}
	return content, nil
}

// providerError keeps the HTTP status of a failed provider call.
type providerError struct {
	provider   string
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.provider, e.statusCode, e.message)
	}
	return fmt.Sprintf("%s API error (status %d)", e.provider, e.statusCode)
}

func mapOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &providerError{provider: provider, statusCode: apiErr.StatusCode, message: apiErr.Message}
	}
	return err
}

// isRetryableTextError retries transport failures, timeouts, throttling and 5xx.
func isRetryableTextError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *providerError
	if errors.As(err, &pe) {
		return pe.statusCode == http.StatusTooManyRequests ||
			pe.statusCode == http.StatusRequestTimeout ||
			pe.statusCode >= 500
	}
	return true
}
