package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pkgconfig "github.com/justin-elyphant/elyphant-v1-sub002/pkg/config"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/app"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/config"
)

func main() {
	// A local .env is optional; real environment variables take precedence.
	if err := pkgconfig.LoadDotenv(); err != nil {
		slog.Warn("failed to read .env file", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("wishlist-service", cfg.LogLevel, cfg.LogFormat)
	log.Info("starting wishlist service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("wishlist service stopped")
}
