package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rentora/rentora/internal/app"
	jobmetrics "github.com/rentora/rentora/internal/jobs"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/platform/cache"
	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/jobs"
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

	notifier, err := notify.New(cfg.NotifyConfig(), logger)
	if err != nil {
		logger.Error("init notifier", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer jobClient.Close()

	container, err := app.NewContainer(app.Deps{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Enqueuer: jobClient,
	})
	if err != nil {
		logger.Error("init container", slog.Any("error", err))
		os.Exit(1)
	}

	welcome := &jobs.TenantWelcomeJob{
		Tenants:  container.Tenants,
		Owners:   container.Users,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  jobmetrics.NewMetrics(prometheus.DefaultRegisterer),
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTenantWelcome, Handler: welcome.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
