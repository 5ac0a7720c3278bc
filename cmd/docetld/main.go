// docetld watches the upload directory and runs every new document through
// the conversion, classification and extraction pipeline.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvbarbosa/docetl/internal/app"
	"github.com/mvbarbosa/docetl/internal/async"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/ingest"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	queue := async.NewQueue(a.Orchestrator, logger,
		async.WithWorkers(cfg.Workers.Count),
		async.WithQueueSize(cfg.Workers.QueueSize),
		async.WithProcessTimeout(cfg.Workers.ProcessTimeout),
	)

	scanner := ingest.NewScanner(cfg.Paths.UploadDir, queue, logger)
	go scanner.Watch(ctx, 10*time.Second)

	logger.Info("docetld started",
		"upload_dir", cfg.Paths.UploadDir,
		"database", cfg.Database.Type,
		"llm_backend", cfg.LLM.Backend,
		"workers", cfg.Workers.Count,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// let in-flight jobs finish, bounded
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(drainCtx)
	logger.Info("docetld stopped")
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
