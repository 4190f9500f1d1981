package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/automat-dev/automat/internal/actions"
	"github.com/automat-dev/automat/internal/engine"
	"github.com/automat-dev/automat/internal/genai"
	"github.com/automat-dev/automat/internal/history"
	"github.com/automat-dev/automat/internal/logging"
	"github.com/automat-dev/automat/internal/store"
	"github.com/automat-dev/automat/internal/tools"
	"github.com/automat-dev/automat/internal/validation"
	"github.com/automat-dev/automat/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "automat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	s := store.NewStore(backend, logger)
	s.Load(ctx)
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	toolManager := tools.NewManager(logger)
	for _, sc := range cfg.ToolServers {
		if err := toolManager.Start(ctx, sc); err != nil {
			logger.Error("tool server failed to start", "name", sc.Name, "error", err)
		}
	}
	defer func() {
		if err := toolManager.StopAll(); err != nil {
			logger.Error("tool server shutdown failed", "error", err)
		}
	}()

	var generator actions.TextGenerator
	if cfg.GenAI.BaseURL != "" {
		generator = genai.NewClient(cfg.GenAI)
	}

	dispatcher := actions.NewDispatcher(toolManager, generator, logger)
	hist := history.New(cfg.HistoryLimit)
	eng := engine.New(s, dispatcher, hist, logger, cfg.actionTimeout())
	runner := engine.NewRunner(eng, logger)

	validator, err := validation.NewValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	srv := mcp.NewAutomatServer(mcp.AutomatServerDeps{
		Store:     s,
		Engine:    eng,
		Runner:    runner,
		Validator: validator,
		Logger:    logger,
	})

	logger.Info("automat started",
		"backend", cfg.Backend,
		"workflows", s.Count(),
		"tool_servers", len(toolManager.Names()))

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("automat stopped")
	return nil
}

func newBackend(ctx context.Context, cfg Config) (store.Backend, error) {
	switch cfg.Backend {
	case "libsql":
		backend, err := store.NewLibSQLBackend(ctx, "file:"+cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return backend, nil
	case "", "file":
		return store.NewFileBackend(cfg.WorkflowsPath), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want file or libsql)", cfg.Backend)
	}
}

// newLogger builds the process logger. Logs go to stderr; stdout belongs to
// the MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
