package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("addr", ":8080")
	v.Set("db", "interviewer.db")
	v.Set("cheating-threshold", 0.7)
	v.Set("llm-timeout", "2m")
	v.Set("stun-servers", []string{"stun:a:3478,stun:b:3478", " stun:c:3478 "})
	v.Set("audio-retention", "24h")
	return v
}

func TestLoad(t *testing.T) {
	cfg := Load(validViper())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.LLM.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.LLM.Timeout)
	}
	if len(cfg.Relay.STUNServers) != 3 || cfg.Relay.STUNServers[2] != "stun:c:3478" {
		t.Errorf("unexpected STUN servers %v", cfg.Relay.STUNServers)
	}
	if cfg.Speech.Retention != 24*time.Hour {
		t.Errorf("expected 24h retention, got %v", cfg.Speech.Retention)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
		want string
	}{
		{"bad provider", map[string]any{"llm-provider": "claude-local"}, "unknown llm-provider"},
		{"gemini without key", map[string]any{"llm-provider": "Gemini"}, "gemini-key"},
		{"threshold too high", map[string]any{"cheating-threshold": 1.5}, "cheating-threshold"},
		{"tts without dir", map[string]any{"tts-enabled": true}, "audio-dir"},
		{"turn without user", map[string]any{"turn-url": "turn:t:3478"}, "turn-username"},
		{"missing db", map[string]any{"db": ""}, "db is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validViper()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			err := Load(v).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
