package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendis/agentboard/internal/engine"
	"github.com/rendis/agentboard/internal/logging"
	"github.com/rendis/agentboard/internal/panel"
	"github.com/rendis/agentboard/internal/scheduler"
	"github.com/rendis/agentboard/internal/store"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/internal/validation"
	"github.com/rendis/agentboard/pkg/mcp"
	"github.com/rendis/agentboard/pkg/schema"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}

	cfg := loadConfig()
	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("agentboard exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(boardDir(), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	eventLog := store.NewEventLog(st)

	validator, err := validation.NewEventValidator()
	if err != nil {
		return err
	}

	board := engine.NewBoard(engine.Config{
		Validator: validator,
		Hub:       streaming.NewMemoryHub(),
		Sink:      eventLog,
		Logger:    logger,
	})
	defer board.Close()

	if err := restore(ctx, board, eventLog, logger); err != nil {
		return err
	}

	snapshots, err := scheduler.NewScheduler(board, eventLog, cfg.SnapshotCron, cfg.SnapshotKeep, logger)
	if err != nil {
		return err
	}
	if err := snapshots.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = snapshots.Stop()
		// Final snapshot so a restart replays as little as possible.
		snapCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		snapshots.Snapshot(snapCtx)
	}()

	if cfg.MCP {
		boardSrv := mcp.NewBoardServer(mcp.BoardServerDeps{Board: board, Logger: logger})
		go func() {
			if err := boardSrv.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mcp watch stopped", slog.Any("error", err))
			}
		}()
		go func() {
			if err := boardSrv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mcp server stopped", slog.Any("error", err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: panel.NewServer(panel.Deps{Board: board, Logger: logger}).Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agentboard listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("db", cfg.DBPath))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// restore rebuilds the graph from the latest snapshot plus the events
// appended after it. A missing snapshot means a full replay from zero.
func restore(ctx context.Context, board *engine.Board, eventLog *store.EventLog, logger *slog.Logger) error {
	since := uint64(0)
	state, seq, err := eventLog.LoadGraphSnapshot(ctx)
	switch {
	case err == nil:
		board.RestoreSnapshot(state, seq)
		since = seq
		logger.Info("graph seeded from snapshot", slog.Uint64("sequence", seq))
	default:
		var boardErr *schema.BoardError
		if !errors.As(err, &boardErr) || boardErr.Code != schema.ErrCodeNotFound {
			return err
		}
	}

	payloads, err := eventLog.Replay(ctx, since)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}
	return board.Restore(ctx, payloads)
}
