package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pricewatch/pricewatch/internal/app"
	"github.com/pricewatch/pricewatch/internal/auth"
	"github.com/pricewatch/pricewatch/internal/feed"
	jobmetrics "github.com/pricewatch/pricewatch/internal/jobs"
	"github.com/pricewatch/pricewatch/internal/platform/cache"
	"github.com/pricewatch/pricewatch/internal/platform/db"
	"github.com/pricewatch/pricewatch/internal/pricehist"
	"github.com/pricewatch/pricewatch/internal/shared"
	"github.com/pricewatch/pricewatch/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pricewatch_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	broker := feed.NewBroker(redisClient, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, cfg.AdminEmail, sessionManager, broker, logger)

	priceRepo := pricehist.NewRepository(pool)
	priceService := pricehist.NewService(priceRepo, broker, nil, logger)

	metrics := jobmetrics.NewMetrics(nil)

	snapshotTask, err := jobs.NewPriceSnapshotTask(time.Time{})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionsPurge, Handler: jobs.HandleSessionsPurge(authService, metrics, logger)},
			{Type: jobs.TaskPriceSnapshot, Handler: jobs.HandlePriceSnapshot(priceService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewSessionsPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 0 * * *", Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
