package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"payflow/internal/aws"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/controller"
	"payflow/internal/database"
	"payflow/internal/integration"
	"payflow/internal/rabbitmq"
	"payflow/internal/server"
	"payflow/internal/worker"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer db.Close(context.Background())

	statusCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer statusCache.Close()

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	files, err := aws.NewFileService(cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create S3 file service")
	}

	payablesClient := integration.NewPayablesClient(cfg.Integrations)
	notifier := integration.NewNotificationClient(cfg.Notifications)

	bc := controller.NewBatchController(db, rabbit, files, statusCache, cfg.RabbitMQ, cfg.Batch)
	aggregator := controller.NewCompletionAggregator(db, notifier)

	// the API binary runs an in-process worker pool; deploy cmd/worker for
	// additional consumers
	itemWorker := worker.NewItemWorker(db, rabbit, payablesClient, notifier, aggregator, cfg.RabbitMQ, cfg.Batch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := itemWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start item workers")
	}

	srv := server.New(*cfg, db, statusCache, rabbit, files, bc)

	go func() {
		log.Info().Int("port", cfg.Port).Str("app", cfg.AppName).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	itemWorker.Stop()
}
