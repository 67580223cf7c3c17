package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible chat completion endpoint, including Ollama.
type OpenAI struct {
	api   *openai.Client
	model string
	cfg   Config
}

// NewOpenAI creates a client for an OpenAI-compatible API.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
		cfg:   cfg,
	}
}

func (c *OpenAI) Name() string { return "openai" }

// Generate sends the prompt as a single user message.
func (c *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	creq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: c.Name(), Code: ErrCodeEmptyResponse, Message: "no choices returned"}
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return "", &ProviderError{Provider: c.Name(), Code: ErrCodeEmptyResponse, Message: "empty completion"}
	}
	slog.Debug("LLM response", "provider", c.Name(), "model", c.model, "chars", len(raw))
	return raw, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *OpenAI) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", c.wrap(err))
	}
	return nil
}

func (c *OpenAI) wrap(err error) *ProviderError {
	pe := classify(c.Name(), err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			pe.Code = ErrCodeAPIKey
		case http.StatusTooManyRequests:
			pe.Code = ErrCodeRateLimit
		case http.StatusBadRequest:
			pe.Code = ErrCodeInvalidInput
		}
	}
	return pe
}
