package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/rentora/rentora/cmd/rentora/cli"
	"github.com/rentora/rentora/internal/app"
	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/platform/cache"
	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/jobs"
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

	welcomeFlags := flag.NewFlagSet("welcome", flag.ContinueOnError)
	tenantFlag := welcomeFlags.String("tenant", "", "tenant id")
	ownerFlag := welcomeFlags.String("owner", "", "owner user id")

	root := cli.NewRoot("rentora", "serve", os.Stderr,
		&cli.Command{
			Name:        "serve",
			Description: "run the HTTP API",
			Run: func(ctx context.Context, _ []string) error {
				return serve(ctx, cfg, logger)
			},
		},
		&cli.Command{
			Name:        "provision",
			Description: "upsert the permission catalog and system roles",
			Run: func(ctx context.Context, _ []string) error {
				return provision(ctx, cfg, logger)
			},
		},
		&cli.Command{
			Name:        "jobs-stats",
			Description: "print default queue statistics",
			Run: func(ctx context.Context, _ []string) error {
				c := cli.NewJobsCLI(cfg.RedisAddr)
				defer c.Close()
				stats, err := c.InspectQueue(ctx)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(stats)
			},
		},
		&cli.Command{
			Name:        "welcome",
			Description: "re-send the welcome message (-tenant, -owner)",
			Flags:       welcomeFlags,
			Run: func(ctx context.Context, _ []string) error {
				tenantID, err := uuid.Parse(*tenantFlag)
				if err != nil {
					return fmt.Errorf("tenant: %w", err)
				}
				ownerID, err := uuid.Parse(*ownerFlag)
				if err != nil {
					return fmt.Errorf("owner: %w", err)
				}
				c := cli.NewJobsCLI(cfg.RedisAddr)
				defer c.Close()
				return c.TriggerWelcome(ctx, tenantID, ownerID)
			},
		},
	)

	if err := root.Execute(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	container, err := app.NewContainer(app.Deps{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Pool:     dbpool,
		Redis:    redisClient,
		Enqueuer: jobClient,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      container.Router(jobs.NewHandler(inspector, logger)),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("tenant_guard_mode", string(cfg.GuardMode())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func provision(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer redisClient.Close()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer jobClient.Close()

	container, err := app.NewContainer(app.Deps{
		Config:   cfg,
		Logger:   logger,
		Pool:     dbpool,
		Redis:    redisClient,
		Enqueuer: jobClient,
	})
	if err != nil {
		return err
	}
	if err := container.Roles.ProvisionSystemRoles(ctx); err != nil {
		return err
	}
	logger.Info("system roles provisioned", slog.Int("permissions", container.Catalog.Len()))
	return nil
}
