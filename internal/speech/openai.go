package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig selects an OpenAI-compatible speech endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	Timeout time.Duration
}

// OpenAIRenderer renders speech through the audio/speech endpoint.
type OpenAIRenderer struct {
	api   *openai.Client
	model openai.SpeechModel
	voice openai.SpeechVoice
}

func NewOpenAIRenderer(cfg OpenAIConfig) *OpenAIRenderer {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIRenderer{
		api:   openai.NewClientWithConfig(config),
		model: openai.SpeechModel(cfg.Model),
		voice: openai.SpeechVoice(cfg.Voice),
	}
}

func (r *OpenAIRenderer) Render(ctx context.Context, text string) ([]byte, error) {
	resp, err := r.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          r.model,
		Input:          text,
		Voice:          r.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()
	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("create speech: empty audio")
	}
	return audio, nil
}
