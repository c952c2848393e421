// Command seedauthz installs the permission catalog and system roles. It is
// idempotent and safe to run on every deploy.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aurora-ops/aurora-ops/internal/app"
	"github.com/aurora-ops/aurora-ops/internal/catalog"
	"github.com/aurora-ops/aurora-ops/internal/platform/db"
)

func main() {
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

	if err := catalog.Seed(ctx, catalog.NewRepository(pool)); err != nil {
		logger.Error("seed catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("catalog seeded")
}
