package pipeline

import (
	"context"

	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt to the LLM and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

// CompleteOptions holds options for LLM completion.
type CompleteOptions struct {
	Temperature       *float64 // Sampling temperature, client default when nil
	MaxTokens         int64    // Overrides the client's max tokens when non-zero
	CacheSystemPrompt bool     // Enable prompt caching for the system prompt
}

// CompleteOption configures a single Complete call.
type CompleteOption func(*CompleteOptions)

// WithTemperature sets the sampling temperature for a call.
func WithTemperature(t float64) CompleteOption {
	return func(o *CompleteOptions) { o.Temperature = &t }
}

// WithMaxTokens overrides the client's max tokens for a call.
func WithMaxTokens(n int64) CompleteOption {
	return func(o *CompleteOptions) { o.MaxTokens = n }
}

// WithCacheControl enables prompt caching for the system prompt.
func WithCacheControl() CompleteOption {
	return func(o *CompleteOptions) { o.CacheSystemPrompt = true }
}

// ApplyCompleteOptions folds opts into a CompleteOptions value.
func ApplyCompleteOptions(opts ...CompleteOption) CompleteOptions {
	var o CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Generator produces a result for a request given the dataset statistics.
//
// Implementations return a fallback result instead of an error when the underlying model
// fails or produces unparseable output. Errors are reserved for conditions that should
// stop the run, such as cancellation or rejected credentials.
type Generator interface {
	Generate(ctx context.Context, req Request, stats *summary.Statistics) (Result, error)
}

// Summarizer produces the dataset statistics for a run.
type Summarizer interface {
	Summarize(ctx context.Context) (*summary.Statistics, error)
}
