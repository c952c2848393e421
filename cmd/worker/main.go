package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aurora-ops/aurora-ops/internal/app"
	"github.com/aurora-ops/aurora-ops/internal/assignment"
	"github.com/aurora-ops/aurora-ops/internal/audit"
	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/catalog"
	"github.com/aurora-ops/aurora-ops/internal/observability"
	"github.com/aurora-ops/aurora-ops/internal/platform/cache"
	"github.com/aurora-ops/aurora-ops/internal/platform/db"
	"github.com/aurora-ops/aurora-ops/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	permCache := authz.NewRedisCache(redisClient, cfg.PermissionCacheTTL)
	invalidator := authz.NewInvalidator(permCache, logger)
	auditService := audit.NewService(pool, logger)

	catalogService := catalog.NewService(catalog.NewRepository(pool), invalidator, auditService)
	assignmentService := assignment.NewService(assignment.NewRepository(pool), catalogService, invalidator, auditService, logger)

	sweepJob := jobs.NewAssignmentSweepJob(assignmentService, logger, metrics)
	sweepTask, err := jobs.NewAssignmentSweepTask(cfg.SweepBatchSize)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAssignmentSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
