// Package config folds command-line flags, environment and config file
// values into one explicit structure that is handed to every component.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LLM selects the text-generation backend.
type LLM struct {
	Provider    string
	URL         string
	Key         string
	Model       string
	GeminiKey   string
	GeminiModel string
	Timeout     time.Duration
}

// Relay configures the signaling relay.
type Relay struct {
	STUNServers  []string
	TURNURL      string
	TURNUsername string
	TURNPassword string
}

// Speech configures question audio.
type Speech struct {
	Enabled   bool
	Model     string
	Voice     string
	Dir       string
	Retention time.Duration
}

// Config is the complete server configuration.
type Config struct {
	Addr              string
	DB                string
	Lang              string
	JobsFile          string
	CORSOrigins       []string
	JWTSecret         string
	RedisAddr         string
	CheatingThreshold float64
	LLM               LLM
	Relay             Relay
	Speech            Speech
}

// Load reads every known key from v.
func Load(v *viper.Viper) Config {
	return Config{
		Addr:              v.GetString("addr"),
		DB:                v.GetString("db"),
		Lang:              v.GetString("lang"),
		JobsFile:          v.GetString("jobs"),
		CORSOrigins:       splitList(v.GetStringSlice("cors-origins")),
		JWTSecret:         v.GetString("jwt-secret"),
		RedisAddr:         v.GetString("redis-addr"),
		CheatingThreshold: v.GetFloat64("cheating-threshold"),
		LLM: LLM{
			Provider:    strings.ToLower(strings.TrimSpace(v.GetString("llm-provider"))),
			URL:         v.GetString("llm-url"),
			Key:         v.GetString("llm-key"),
			Model:       v.GetString("llm-model"),
			GeminiKey:   v.GetString("gemini-key"),
			GeminiModel: v.GetString("gemini-model"),
			Timeout:     v.GetDuration("llm-timeout"),
		},
		Relay: Relay{
			STUNServers:  splitList(v.GetStringSlice("stun-servers")),
			TURNURL:      v.GetString("turn-url"),
			TURNUsername: v.GetString("turn-username"),
			TURNPassword: v.GetString("turn-password"),
		},
		Speech: Speech{
			Enabled:   v.GetBool("tts-enabled"),
			Model:     v.GetString("tts-model"),
			Voice:     v.GetString("tts-voice"),
			Dir:       v.GetString("audio-dir"),
			Retention: v.GetDuration("audio-retention"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DB == "" {
		errs = append(errs, errors.New("db is required"))
	}
	switch c.LLM.Provider {
	case "", "openai", "ollama":
	case "gemini":
		if c.LLM.GeminiKey == "" {
			errs = append(errs, errors.New("gemini-key is required for the gemini provider"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown llm-provider %q", c.LLM.Provider))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, errors.New("llm-timeout must not be negative"))
	}
	if c.CheatingThreshold <= 0 || c.CheatingThreshold > 1 {
		errs = append(errs, fmt.Errorf("cheating-threshold must be in (0, 1], got %v", c.CheatingThreshold))
	}
	if c.Speech.Enabled && c.Speech.Dir == "" {
		errs = append(errs, errors.New("audio-dir is required when tts-enabled is set"))
	}
	if c.Relay.TURNURL != "" && c.Relay.TURNUsername == "" {
		errs = append(errs, errors.New("turn-username is required with turn-url"))
	}
	return errors.Join(errs...)
}

// splitList flattens comma-separated entries, which arrive unsplit from
// environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
