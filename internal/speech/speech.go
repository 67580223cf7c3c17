// Package speech renders interview questions to audio files and serves them
// back by URL. Rendered files are keyed by a hash of the text so repeated
// requests reuse the same artifact.
package speech

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// URLPrefix is where rendered files are served.
const URLPrefix = "/api/audio/"

// DefaultRetention is how long rendered audio is kept.
const DefaultRetention = 24 * time.Hour

var (
	safeFilename  = regexp.MustCompile(`^[A-Za-z0-9_-]+\.wav$`)
	safeSessionID = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// Renderer turns text into WAV bytes.
type Renderer interface {
	Render(ctx context.Context, text string) ([]byte, error)
}

// Cache remembers the URL of a rendered file.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string) error
}

// Config controls the speech service.
type Config struct {
	Enabled   bool
	Dir       string
	Retention time.Duration
}

// Options identifies what the text belongs to.
type Options struct {
	SessionID     string
	QuestionIndex *int
	UseCache      bool
}

// Result is the outcome of Synthesize. Error is set exactly when Success is false.
type Result struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Service struct {
	cfg      Config
	renderer Renderer
	cache    Cache
}

// NewService creates the service. cache may be nil, in which case a file on
// disk counts as a cache hit.
func NewService(cfg Config, renderer Renderer, cache Cache) (*Service, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Enabled {
		if cfg.Dir == "" {
			return nil, errors.New("speech: audio directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audio directory: %w", err)
		}
	}
	return &Service{cfg: cfg, renderer: renderer, cache: cache}, nil
}

// Enabled reports whether synthesis is switched on.
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Synthesize renders text, or returns the cached rendering when opts.UseCache
// is set. It never returns a Go error; failures are reported in Result.
func (s *Service) Synthesize(ctx context.Context, text string, opts Options) Result {
	if !s.cfg.Enabled {
		metrics.SpeechRequests.WithLabelValues("disabled").Inc()
		return Result{Error: i18n.T(ctx, "TTSDisabled")}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.SpeechRequests.WithLabelValues("failed").Inc()
		return Result{Error: i18n.T(ctx, "TTSFailed")}
	}

	name := Filename(text, opts)
	url := URLPrefix + name
	path := filepath.Join(s.cfg.Dir, name)

	if opts.UseCache && s.cached(ctx, name, path) {
		metrics.SpeechRequests.WithLabelValues("cached").Inc()
		slog.Debug("using cached audio", "file", name)
		return Result{Success: true, AudioURL: url}
	}

	audio, err := s.renderer.Render(ctx, text)
	if err == nil {
		err = writeAtomic(path, audio)
	}
	if err != nil {
		metrics.SpeechRequests.WithLabelValues("failed").Inc()
		slog.Error("speech synthesis failed", "file", name, "error", err)
		return Result{Error: i18n.T(ctx, "TTSFailed")}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, name, url); err != nil {
			slog.Warn("speech cache write failed", "file", name, "error", err)
		}
	}
	metrics.SpeechRequests.WithLabelValues("rendered").Inc()
	slog.Info("speech generated", "file", name, "bytes", len(audio))
	return Result{Success: true, AudioURL: url}
}

// cached reports whether a usable rendering of name exists. A cache entry only
// counts while its file is still on disk.
func (s *Service) cached(ctx context.Context, name, path string) bool {
	if s.cache != nil {
		_, ok, err := s.cache.Get(ctx, name)
		if err != nil {
			slog.Warn("speech cache read failed, checking disk", "file", name, "error", err)
		} else if !ok {
			return false
		}
	}
	_, err := os.Stat(path)
	if err != nil && s.cache != nil {
		slog.Debug("cached audio missing on disk", "file", name)
	}
	return err == nil
}

// Filename derives the file name for text: session_{id}_q{index}_{hash}.wav
// when the text belongs to a question, tts_{hash}.wav otherwise.
func Filename(text string, opts Options) string {
	h := TextHash(text)
	if opts.SessionID != "" && opts.QuestionIndex != nil && safeSessionID.MatchString(opts.SessionID) {
		return "session_" + opts.SessionID + "_q" + strconv.Itoa(*opts.QuestionIndex) + "_" + h + ".wav"
	}
	return "tts_" + h + ".wav"
}

// TextHash is the first 16 hex characters of the BLAKE2b-256 digest of text.
func TextHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// AudioPath resolves a served file name to its path on disk.
func (s *Service) AudioPath(name string) (string, error) {
	if !safeFilename.MatchString(name) {
		return "", fmt.Errorf("audio file %q: %w", name, model.ErrNotFound)
	}
	path := filepath.Join(s.cfg.Dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("audio file %q: %w", name, model.ErrNotFound)
	}
	return path, nil
}

// Cleanup deletes rendered files older than the retention period and returns
// how many were removed.
func (s *Service) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read audio directory: %w", err)
	}
	cutoff := time.Now().Add(-s.cfg.Retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !safeFilename.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, e.Name())); err != nil {
			slog.Warn("failed to delete audio file", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tts-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
