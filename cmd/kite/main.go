package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/budget"
	"github.com/kitebot/kite/internal/config"
	"github.com/kitebot/kite/internal/provider"
	"github.com/kitebot/kite/internal/provider/anthropic"
	"github.com/kitebot/kite/internal/provider/gemini"
	"github.com/kitebot/kite/internal/provider/openai"
	"github.com/kitebot/kite/internal/server"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/store/postgres"
	redisstore "github.com/kitebot/kite/internal/store/redis"
	"github.com/kitebot/kite/internal/tool"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("KITE_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("KITE_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Build the model backend.
	backend, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	// File tools resolve relative paths against the working directory.
	if cfg.Agent.Workspace != "" && cfg.Agent.Workspace != "." {
		if chdirErr := os.Chdir(cfg.Agent.Workspace); chdirErr != nil {
			return fmt.Errorf("workspace: %w", chdirErr)
		}
		log.Info().Str("dir", cfg.Agent.Workspace).Msg("workspace set")
	}

	// Sessions, restored from the last snapshot when configured.
	sessions := session.NewManager()
	if cfg.Agent.SnapshotPath != "" {
		if loadErr := sessions.LoadSnapshot(cfg.Agent.SnapshotPath); loadErr != nil {
			return fmt.Errorf("session snapshot: %w", loadErr)
		}
		log.Info().Str("path", cfg.Agent.SnapshotPath).Int("sessions", sessions.Len()).Msg("restored session snapshot")
	}

	// Turn runtime.
	runtime := agent.New(backend,
		agent.WithMaxRetries(cfg.Provider.MaxRetries),
		agent.WithBudget(budget.NewManager(cfg.Provider.ContextTokens)),
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
	)

	// Tools.
	tools := tool.NewRegistry()
	tools.Register(tool.ReadFileTool{})
	tools.Register(tool.WriteFileTool{})
	tools.Register(tool.ReplaceInFileTool{})
	tools.Register(tool.NewWebFetchTool())
	tools.Register(&tool.SessionsListTool{Manager: sessions})
	tools.Register(&tool.SessionsHistoryTool{Manager: sessions})
	tools.Register(&tool.SessionsSendTool{Manager: sessions})
	if cfg.Slack.BotToken != "" {
		tools.Register(tool.NewSlackMessageTool(cfg.Slack.BotToken))
		log.Info().Msg("slack_message tool enabled")
	}

	// Optional transcript archive.
	var transcripts *postgres.TranscriptRepo
	if cfg.Database.Enabled() {
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, storeErr := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()
		transcripts = store.Transcripts()
		log.Info().Str("host", cfg.Database.Host).Msg("transcript archive enabled")
	}

	// Optional event fanout.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Enabled() {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("event fanout enabled")
	}

	relay := server.NewRelay(runtime, pubsub, transcripts)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, sessions, relay, tools, pubsub, transcripts)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("model", cfg.Provider.Model).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	if cfg.Agent.SnapshotPath != "" {
		if saveErr := sessions.SaveSnapshot(cfg.Agent.SnapshotPath); saveErr != nil {
			log.Error().Err(saveErr).Msg("save session snapshot")
		}
	}

	log.Info().Msg("stopped")
	return nil
}

// buildProvider resolves the configured model to a backend. Unknown
// provider prefixes fall back to the OpenAI-compatible client so local
// gateways work without a dedicated adapter.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	registry := provider.NewRegistry()
	registry.Register("anthropic", anthropic.New)
	registry.Register("openai", openai.New)
	registry.Register("gemini", gemini.New)
	registry.Register("google", gemini.New)

	providerName, modelName := provider.ParseModel(cfg.Provider.Model)
	pcfg := provider.Config{
		Model:   modelName,
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
	}

	backend, err := registry.Create(providerName, pcfg)
	if errors.Is(err, provider.ErrUnknownProvider) {
		log.Warn().Str("provider", providerName).Msg("unknown provider, using OpenAI-compatible client")
		backend, err = openai.New(pcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", providerName, err)
	}
	return backend, nil
}
