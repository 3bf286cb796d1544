package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"

	"github.com/malbeclabs/ads-analyst/internal/metrics"
)

const (
	DefaultModel     = anthropic.ModelClaudeSonnet4_5_20250929
	DefaultMaxTokens = 2000

	defaultMaxAttempts = 4
)

// ErrAuthentication is returned when the API rejects the configured credentials.
var ErrAuthentication = errors.New("llm authentication failed")

// AnthropicConfig configures an AnthropicLLMClient.
type AnthropicConfig struct {
	Logger    *slog.Logger
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64

	// MaxAttempts bounds calls per Complete including the first, defaultMaxAttempts when zero.
	MaxAttempts int
	// InitialBackoff overrides the first retry delay when non-zero.
	InitialBackoff time.Duration
	// RequestOptions are passed to the SDK client, e.g. option.WithBaseURL.
	RequestOptions []option.RequestOption
}

// AnthropicLLMClient implements LLMClient using the Anthropic API.
type AnthropicLLMClient struct {
	log            *slog.Logger
	client         anthropic.Client
	model          anthropic.Model
	maxTokens      int64
	maxAttempts    int
	initialBackoff time.Duration
}

// NewAnthropicLLMClient creates a new Anthropic-based LLM client.
func NewAnthropicLLMClient(cfg AnthropicConfig) (*AnthropicLLMClient, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	// Retries are handled here so auth failures are never retried.
	opts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, cfg.RequestOptions...)

	return &AnthropicLLMClient{
		log:            cfg.Logger,
		client:         anthropic.NewClient(opts...),
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
	}, nil
}

// Complete sends a prompt to Claude and returns the response text.
func (c *AnthropicLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error) {
	o := ApplyCompleteOptions(opts...)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		params.Temperature = anthropic.Float(*o.Temperature)
	}
	if o.CacheSystemPrompt {
		params.System[0].CacheControl = anthropic.NewCacheControlEphemeralParam()
	}

	start := time.Now()
	c.log.Debug("Anthropic API call starting", "model", c.model, "maxTokens", params.MaxTokens, "userPromptLen", len(userPrompt))

	b := backoff.NewExponentialBackOff()
	if c.initialBackoff > 0 {
		b.InitialInterval = c.initialBackoff
	}
	attempt := 0
	msg, err := backoff.Retry(ctx, func() (*anthropic.Message, error) {
		if attempt > 0 {
			c.log.Warn("Anthropic API call failed, retrying", "attempt", attempt)
		}
		attempt++
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		return msg, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxAttempts)))

	duration := time.Since(start)
	if err != nil {
		metrics.LLMCallDuration.WithLabelValues("error").Observe(duration.Seconds())
		c.log.Error("Anthropic API call failed", "duration", duration, "attempts", attempt, "error", err)
		if errors.Is(err, ErrAuthentication) {
			return "", err
		}
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	metrics.LLMCallDuration.WithLabelValues("ok").Observe(duration.Seconds())
	c.log.Debug("Anthropic API call completed", "duration", duration, "stopReason", msg.StopReason)

	// Extract text from response
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

// classifyAPIError marks errors that retrying cannot fix as permanent.
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrAuthentication, err))
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return err
	case code >= 400 && code < 500:
		return backoff.Permanent(err)
	default:
		return err
	}
}
