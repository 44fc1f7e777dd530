// Package main runs dispatchd, the work-dispatch server: it exposes
// the HTTP API and the background sweeps over a memory or PostgreSQL
// store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhammadiwa/youtube-automation-sub005/api"
	"github.com/muhammadiwa/youtube-automation-sub005/config"
	"github.com/muhammadiwa/youtube-automation-sub005/engine"
	"github.com/muhammadiwa/youtube-automation-sub005/notify"
	"github.com/muhammadiwa/youtube-automation-sub005/store"
	"github.com/muhammadiwa/youtube-automation-sub005/store/memory"
	"github.com/muhammadiwa/youtube-automation-sub005/store/postgres"
	"github.com/muhammadiwa/youtube-automation-sub005/sweeper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithNotifier(notify.NewLogNotifier(logger)),
		engine.WithThrottleConfig(cfg.ThrottleConfigs()...),
	}
	if cfg.Alerts.WebhookURL != "" {
		opts = append(opts, engine.WithNotifier(notify.NewWebhookNotifier(cfg.Alerts.WebhookURL, nil)))
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(cfg.Redis.RedisOptions())
		defer func() { _ = client.Close() }()
		opts = append(opts, engine.WithNotifier(notify.NewRedisNotifier(client, cfg.Redis.AlertChannel)))
	}
	for jobType, b := range cfg.Backoff {
		opts = append(opts, engine.WithBackoffPolicy(jobType, b.Policy()))
	}

	eng, err := engine.Build(cfg.CoreConfig(), st, logger, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err = eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	sw := sweeper.New(eng, logger)
	if err = sw.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(eng).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("server failed", "error", serveErr)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err = sw.Stop(shutdownCtx); err != nil {
		logger.Error("sweeper shutdown", "error", err)
	}
	return eng.Stop(shutdownCtx)
}

// openStore builds the configured store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := postgres.New(ctx, cfg.Store.DSN(), postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return memory.New(), nil
	}
}
