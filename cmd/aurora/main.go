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

	"github.com/aurora-ops/aurora-ops/internal/app"
	"github.com/aurora-ops/aurora-ops/internal/assignment"
	"github.com/aurora-ops/aurora-ops/internal/audit"
	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/catalog"
	"github.com/aurora-ops/aurora-ops/internal/observability"
	"github.com/aurora-ops/aurora-ops/internal/platform/cache"
	"github.com/aurora-ops/aurora-ops/internal/platform/db"
	"github.com/aurora-ops/aurora-ops/internal/policy"
	"github.com/aurora-ops/aurora-ops/internal/users"
	"github.com/aurora-ops/aurora-ops/jobs"
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

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, invalidator, auditService)
	catalogHandler := catalog.NewHandler(catalogService, logger)

	userService := users.NewService(users.NewRepository(pool), invalidator)

	assignmentRepo := assignment.NewRepository(pool)
	assignmentService := assignment.NewService(assignmentRepo, catalogService, invalidator, auditService, logger)

	resolver := authz.NewResolver(assignmentService, catalogService, userService)
	gate := authz.NewGate(resolver, authz.GateConfig{
		Cache:   permCache,
		Rules:   authz.DefaultRules(),
		Logger:  logger,
		Metrics: metrics,
		TTL:     cfg.PermissionCacheTTL,
	})
	authzMiddleware := authz.Middleware{Gate: gate, Logger: logger}

	assignmentHandler := assignment.NewHandler(assignmentService, gate, logger)

	enforcer := policy.NewEnforcer(userService, logger)
	policy.RegisterDefaultLoaders(enforcer, pool)
	policyHandler := policy.NewHandler(gate, enforcer, logger)
	auditHandler := audit.NewHandler(auditService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalogHandler,
		AssignmentHandler: assignmentHandler,
		PolicyHandler:     policyHandler,
		AuditHandler:      auditHandler,
		JobHandler:        jobHandler,
		Pool:              pool,
		Authz:             authzMiddleware,
		Metrics:           metrics,
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
