package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsdesk/opsdesk/internal/app"
	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/platform/cache"
	"github.com/opsdesk/opsdesk/internal/platform/db"
	"github.com/opsdesk/opsdesk/internal/secretbox"
	"github.com/opsdesk/opsdesk/internal/shared"
	"github.com/opsdesk/opsdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	cfg, err := app.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PostgresDSN)
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
	defer redisClient.Close()

	key, err := secretbox.KeyFromHex(cfg.SecretboxKey)
	if err != nil {
		logger.Error("parse secretbox key", slog.Any("error", err))
		os.Exit(1)
	}
	codec, err := secretbox.New(key)
	if err != nil {
		logger.Error("build secretbox codec", slog.Any("error", err))
		os.Exit(1)
	}
	sessions := shared.NewSessionManager(redisClient, codec, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction(), http.SameSiteLaxMode)

	worker := jobs.NewWorker(cfg.RedisAddr, auth.NewRepository(pool), sessions, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		worker.Shutdown()
	}()

	logger.Info("worker starting")
	if err := worker.Start(); err != nil {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
}
