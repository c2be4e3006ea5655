package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/foamcrew/foamcrew/internal/app"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/platform/db"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/store"
	"github.com/foamcrew/foamcrew/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	recordStore := store.New(pool, logger)
	ledgerRepo := ledger.NewRepository(recordStore)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	retentionTask, err := jobs.NewLedgerRetentionTask(cfg.MaterialLogRetention)
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask := jobs.NewIdempotencyCleanupTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTrialWelcome, Handler: jobs.HandleTrialWelcomeTask(logger)},
			{Type: jobs.TaskLedgerRetention, Handler: jobs.HandleLedgerRetentionTask(ledgerRepo, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.HandleIdempotencyCleanupTask(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
