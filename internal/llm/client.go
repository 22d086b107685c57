// Package llm provides reasoning-service clients for fix generation.
//
// The pipeline treats the reasoning service as an opaque remote procedure
// that takes a prompt and returns text. Provider-specific clients (Anthropic,
// OpenAI) implement the Client interface; response normalization into
// structured fixes lives in fix.go.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client generates a completion from a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds reasoning-service client configuration.
type Config struct {
	// Provider selects the client implementation: "anthropic" or "openai".
	Provider string

	// Model is the provider model identifier.
	Model string

	// APIKey authenticates requests.
	APIKey string

	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string

	// Timeout is the per-request timeout in seconds.
	Timeout int

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature controls sampling. Low values keep fixes deterministic.
	Temperature float64
}

const (
	defaultAnthropicModel   = "claude-sonnet-4-5"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIModel      = "gpt-4o"
	defaultOpenAIBaseURL    = "https://api.openai.com"

	defaultTimeout     = 60 * time.Second
	defaultMaxTokens   = 2000
	defaultTemperature = 0.1
	defaultRateLimit   = 2.0 // requests per second
	defaultBurst       = 4
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
)

// New creates a Client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// retryableError marks errors worth retrying (rate limits, 5xx, transport).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoffWait sleeps for the attempt's exponential backoff or returns early
// when the context is done.
func backoffWait(ctx context.Context, attempt int) error {
	backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
