package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/foamcrew/foamcrew/internal/accounts"
	"github.com/foamcrew/foamcrew/internal/actions"
	"github.com/foamcrew/foamcrew/internal/app"
	"github.com/foamcrew/foamcrew/internal/customers"
	"github.com/foamcrew/foamcrew/internal/documents"
	"github.com/foamcrew/foamcrew/internal/heartbeat"
	"github.com/foamcrew/foamcrew/internal/jobops"
	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/observability"
	"github.com/foamcrew/foamcrew/internal/platform/cache"
	"github.com/foamcrew/foamcrew/internal/platform/db"
	"github.com/foamcrew/foamcrew/internal/reconcile"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/snapshot"
	"github.com/foamcrew/foamcrew/internal/store"
	"github.com/foamcrew/foamcrew/internal/warehouse"
	"github.com/foamcrew/foamcrew/jobs"
	"github.com/foamcrew/foamcrew/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Locks and the dirty marker degrade gracefully without redis,
		// so keep serving and let the client reconnect.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	recordStore := store.New(pool, logger)
	if err := recordStore.EnsureAll(ctx); err != nil {
		logger.Error("ensure collections", slog.Any("error", err))
		os.Exit(1)
	}

	accountsRepo := accounts.NewRepository(pool)
	if err := accountsRepo.EnsureSchema(ctx); err != nil {
		logger.Error("ensure accounts schema", slog.Any("error", err))
		os.Exit(1)
	}
	idempotencyStore := shared.NewIdempotencyStore(pool)
	if err := idempotencyStore.EnsureSchema(ctx); err != nil {
		logger.Error("ensure idempotency schema", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	warehouseRepo := warehouse.NewRepository(recordStore)
	jobRepo := jobrecord.NewRepository(recordStore)
	customerRepo := customers.NewRepository(recordStore)
	ledgerRepo := ledger.NewRepository(recordStore)
	messageService := messages.NewService(recordStore)

	tokenCodec := accounts.NewTokenCodec(cfg.TokenSecret)
	accountService := accounts.NewService(accountsRepo, warehouseRepo, tokenCodec, queueClient, logger)

	marker := heartbeat.NewMarker(redisClient)
	engine := reconcile.NewEngine(recordStore, logger)

	snapshotService := snapshot.NewService(jobRepo, customerRepo, warehouseRepo, recordStore, ledgerRepo, messageService, engine, accountService, marker, logger)
	heartbeatService := heartbeat.NewService(marker, jobRepo, messageService, ledgerRepo, warehouseRepo, logger)
	jobService := jobops.NewService(jobRepo, warehouseRepo, ledgerRepo, engine, marker, logger)

	mediaStore := documents.NewMediaStore(cfg.MediaDir, cfg.MediaBaseURL)
	pdfClient := report.NewClient(cfg.GotenbergURL)
	documentService := documents.NewService(jobRepo, warehouseRepo, pdfClient, mediaStore, engine, idempotencyStore, marker, logger)

	locker := shared.NewStoreLocker(redisClient)
	metrics := observability.NewMetrics()

	actionHandler := actions.NewHandler(logger, locker, metrics, accountService, snapshotService, heartbeatService, messageService, jobService, documentService)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ActionHandler: actionHandler,
		Metrics:       metrics,
		MediaRoot:     mediaStore.Root(),
		MediaBaseURL:  cfg.MediaBaseURL,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
