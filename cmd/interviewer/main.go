package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/config"
	"github.com/pavelanni/interviewer/internal/content"
	"github.com/pavelanni/interviewer/internal/handler"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/keylock"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/proctor"
	"github.com/pavelanni/interviewer/internal/relay"
	"github.com/pavelanni/interviewer/internal/report"
	"github.com/pavelanni/interviewer/internal/speech"
	"github.com/pavelanni/interviewer/internal/store"
)

// reportTimeout bounds the background report generated after completion.
const reportTimeout = 5 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "AI-assisted interview server with proctoring",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the interview API and signaling relay",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.String("config", "", "Config file (default interviewer.yaml in . or $HOME/.config/interviewer)")
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default language for generated texts and errors (en, ru)")
	f.String("jobs", "", "Jobs JSON file to import at startup")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed browser origins")
	f.String("jwt-secret", "", "HS256 secret for bearer tokens (empty trusts the X-User-ID header)")
	f.String("redis-addr", "", "Redis address for the speech cache (empty disables it)")
	f.Float64("cheating-threshold", proctor.DefaultThreshold, "Session cheating score that counts as high risk")
	f.String("llm-provider", "openai", "Text generation provider (openai, ollama, gemini, none)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", "gemini-2.0-flash", "Gemini model name")
	f.Duration("llm-timeout", llm.DefaultTimeout, "Timeout for one generation call")
	f.StringSlice("stun-servers", relay.DefaultSTUNServers, "STUN servers announced to peers")
	f.String("turn-url", "", "TURN server URL")
	f.String("turn-username", "", "TURN username")
	f.String("turn-password", "", "TURN password")
	f.Bool("tts-enabled", false, "Render questions to speech")
	f.String("tts-model", "tts-1", "Speech model name")
	f.String("tts-voice", "alloy", "Speech voice")
	f.String("audio-dir", "./audio", "Directory for rendered audio")
	f.Duration("audio-retention", speech.DefaultRetention, "How long rendered audio is kept")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed interviews and their reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("config", "", "Config file")
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("config", "", "Config file")
	f.String("jwt-secret", "", "HS256 secret shared with the server")
	f.String("user", "", "User id placed in the sub claim (required)")
	f.Bool("admin", false, "Grant the admin role")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("interviewer")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/interviewer")
		v.AddConfigPath("/etc/interviewer")
		v.AddConfigPath("/data")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	cfg := config.Load(viperForCmd(cmd))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database.
	db, err := store.New(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.JobsFile != "" {
		if err := loadJobs(db, cfg.JobsFile); err != nil {
			return fmt.Errorf("load jobs: %w", err)
		}
	}

	// Initialize i18n.
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	gen, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	speechSvc, stopJanitor, err := newSpeech(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer stopJanitor()

	// Session deletes and report generation contend on the same per-session lock.
	sessionLocks := new(keylock.Map)
	interviews := interview.NewService(db, gen, sessionLocks)
	reports := report.NewService(db, gen, sessionLocks)
	proctorSvc := proctor.NewService(db, cfg.CheatingThreshold)

	interviews.OnComplete = func(sessionID, userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if _, err := reports.Generate(ctx, sessionID, userID); err != nil {
			slog.Warn("background report generation failed", "session_id", sessionID, "error", err)
		}
	}

	auth := handler.NewAuthenticator(cfg.JWTSecret)
	hub := relay.NewHub(relay.Config{
		STUNServers:    cfg.Relay.STUNServers,
		TURNURL:        cfg.Relay.TURNURL,
		TURNUsername:   cfg.Relay.TURNUsername,
		TURNPassword:   cfg.Relay.TURNPassword,
		AllowedOrigins: cfg.CORSOrigins,
	}, detectionSink(interviews, proctorSvc))
	if auth.TokenMode() {
		hub.Authenticate = auth.UserID
	}

	h := handler.New(handler.Deps{
		Store:       db,
		Interviews:  interviews,
		Reports:     reports,
		Proctor:     proctorSvc,
		Speech:      speechSvc,
		Content:     gen,
		Relay:       hub,
		Auth:        auth,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Addr,
			"llm_provider", cfg.LLM.Provider,
			"model", cfg.LLM.Model,
			"lang", cfg.Lang,
			"tts", cfg.Speech.Enabled,
			"token_auth", auth.TokenMode(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newGenerator wires the configured provider behind the content generator.
// Provider "none" serves everything from the static fallback.
func newGenerator(ctx context.Context, cfg config.LLM) (*content.Generator, error) {
	if cfg.Provider == "none" {
		slog.Info("LLM disabled, using fallback content only")
		return content.NewGenerator(nil), nil
	}

	lib, err := prompts.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	lc := llm.Config{
		Provider: cfg.Provider,
		BaseURL:  cfg.URL,
		APIKey:   cfg.Key,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	}
	if cfg.Provider == "gemini" {
		lc.BaseURL = ""
		lc.APIKey = cfg.GeminiKey
		lc.Model = cfg.GeminiModel
	}
	provider, err := llm.New(ctx, lc)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	// An unreachable endpoint is not fatal: every operation degrades to fallback content.
	if p, ok := provider.(interface{ Ping(context.Context) error }); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			slog.Warn("LLM health check failed", "url", lc.BaseURL, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", lc.BaseURL, "model", lc.Model)
		}
	}

	return content.NewGenerator(content.NewLLMSource(metrics.Instrument(provider), lib)), nil
}

func newSpeech(ctx context.Context, cfg config.Config, rdb *redis.Client) (*speech.Service, func(), error) {
	var renderer speech.Renderer
	var cache speech.Cache
	if cfg.Speech.Enabled {
		renderer = speech.NewOpenAIRenderer(speech.OpenAIConfig{
			BaseURL: cfg.LLM.URL,
			APIKey:  cfg.LLM.Key,
			Model:   cfg.Speech.Model,
			Voice:   cfg.Speech.Voice,
			Timeout: cfg.LLM.Timeout,
		})
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("redis unavailable, speech cache falls back to disk", "addr", cfg.RedisAddr, "error", err)
			} else {
				cache = speech.NewRedisCache(rdb, cfg.Speech.Retention)
			}
		}
	}

	svc, err := speech.NewService(speech.Config{
		Enabled:   cfg.Speech.Enabled,
		Dir:       cfg.Speech.Dir,
		Retention: cfg.Speech.Retention,
	}, renderer, cache)
	if err != nil {
		return nil, nil, fmt.Errorf("create speech service: %w", err)
	}
	if !cfg.Speech.Enabled {
		return svc, func() {}, nil
	}
	stop, err := svc.StartJanitor()
	if err != nil {
		return nil, nil, err
	}
	return svc, stop, nil
}

// detectionSink feeds telemetry pushed over the relay into proctoring. Only
// the interview's owner may report on it.
func detectionSink(interviews *interview.Service, p *proctor.Service) relay.Sink {
	return relay.SinkFunc(func(ctx context.Context, sessionID, userID string, raw map[string]any) {
		if _, err := interviews.Get(ctx, sessionID, userID); err != nil {
			slog.Debug("detection for unknown interview ignored", "session_id", sessionID, "user_id", userID)
			return
		}
		data, err := proctor.DecodeDetectionData(raw)
		if err != nil {
			slog.Warn("invalid detection data", "session_id", sessionID, "error", err)
			return
		}
		if _, err := p.Process(ctx, sessionID, data); err != nil {
			slog.Error("process detection data", "session_id", sessionID, "error", err)
		}
	})
}

func loadJobs(db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	res, err := db.ImportJobs(path, data)
	if err != nil {
		return err
	}
	if res.Duplicate {
		slog.Info("jobs file unchanged, skipping", "path", path)
		return nil
	}
	slog.Info("imported jobs", "path", path, "count", res.Count)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportCompletedSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.ReportExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	auth := handler.NewAuthenticator(v.GetString("jwt-secret"))
	if !auth.TokenMode() {
		return errors.New("jwt-secret is required")
	}
	token, err := auth.Issue(v.GetString("user"), v.GetBool("admin"), v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
