package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

func chatCompletionHandler(t *testing.T, content string, seen *map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(chatCompletionHandler(t, "  1. What is Go?  ", &body))
	defer srv.Close()

	c := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "test", Model: "llama3.2", Timeout: 5 * time.Second})
	got, err := c.Generate(context.Background(), Request{Prompt: "hi", Temperature: 0.5, MaxTokens: 100, JSON: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "1. What is Go?" {
		t.Errorf("expected trimmed content, got %q", got)
	}
	if body["model"] != "llama3.2" {
		t.Errorf("expected model in request, got %v", body["model"])
	}
	if body["max_tokens"] != float64(100) {
		t.Errorf("expected max_tokens 100, got %v", body["max_tokens"])
	}
	if _, ok := body["response_format"]; !ok {
		t.Error("expected response_format for JSON requests")
	}
}

func TestOpenAIGenerateErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		wantCode string
	}{
		{
			name:     "empty completion",
			handler:  chatCompletionHandler(t, "   ", nil),
			timeout:  5 * time.Second,
			wantCode: ErrCodeEmptyResponse,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			},
			timeout:  5 * time.Second,
			wantCode: ErrCodeRateLimit,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			wantCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "test", Model: "m", Timeout: tt.timeout})
			_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, model.ErrUpstreamUnavailable) {
				t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
			}
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if tt.wantCode != "" && pe.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, pe.Code)
			}
		})
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "first"}, {"text": "second"}}},
			}},
		})
	}))
	defer srv.Close()

	p, err := New(context.Background(), Config{Provider: "gemini", BaseURL: srv.URL, APIKey: "test", Model: "gemini-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Generate(context.Background(), Request{Prompt: "hi", Temperature: 0.3, MaxTokens: 50})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "first\nsecond" {
		t.Errorf("expected joined parts, got %q", got)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
