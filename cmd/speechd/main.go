package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/app"
	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/httpserver"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
	"github.com/ncecere/speech_analysis/backend/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Debug)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	redisClient := redisclient.New(cfg.Redis)
	if redisClient != nil {
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	container, err := app.NewContainer(ctx, cfg, logger, redisClient)
	if err != nil {
		logger.Fatal("build container", zap.Error(err))
	}
	if container.Observability != nil {
		defer container.Observability.Shutdown(context.Background())
	}
	if cfg.Speech.Key == "" {
		logger.Warn("AZURE_SPEECH_KEY is not set; analysis requests will fail")
	}
	if cfg.Translator.Key == "" || cfg.Translator.Endpoint == "" {
		logger.Warn("Azure Translator credentials are not set; fallback translations will report an error")
	}

	server, err := httpserver.New(container)
	if err != nil {
		logger.Fatal("construct server", zap.Error(err))
	}

	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
