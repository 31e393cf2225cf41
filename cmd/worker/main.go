package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"payflow/internal/config"
	"payflow/internal/controller"
	"payflow/internal/database"
	"payflow/internal/integration"
	"payflow/internal/rabbitmq"
	"payflow/internal/worker"
)

// Standalone item-worker binary. Run as many replicas as needed; items are
// independent so consumers scale horizontally without coordination.
func main() {
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

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	if err := rabbit.Health(); err != nil {
		log.Warn().Err(err).Msg("RabbitMQ health check failed at startup")
	}

	payablesClient := integration.NewPayablesClient(cfg.Integrations)
	notifier := integration.NewNotificationClient(cfg.Notifications)
	aggregator := controller.NewCompletionAggregator(db, notifier)

	itemWorker := worker.NewItemWorker(db, rabbit, payablesClient, notifier, aggregator, cfg.RabbitMQ, cfg.Batch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := itemWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start item workers")
	}

	log.Info().Msg("Worker running. Press CTRL+C to exit.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")

	cancel()
	itemWorker.Stop()
}
