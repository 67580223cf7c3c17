package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 2 * time.Minute

// Request is one text-generation call.
type Request struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool // ask the endpoint for a JSON object
}

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Error codes carried by ProviderError.
const (
	ErrCodeAPIKey        = "invalid_api_key"
	ErrCodeRateLimit     = "rate_limit_exceeded"
	ErrCodeServiceDown   = "service_unavailable"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeTimeout       = "timeout"
	ErrCodeEmptyResponse = "empty_response"
)

// ProviderError is returned by every provider call that fails.
// It always matches model.ErrUpstreamUnavailable via errors.Is.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{model.ErrUpstreamUnavailable, e.Err}
	}
	return []error{model.ErrUpstreamUnavailable}
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai or gemini
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch cfg.Provider {
	case "", "openai", "ollama":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	code := ErrCodeServiceDown
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &ProviderError{Provider: provider, Code: code, Message: "generation failed", Err: err}
}
