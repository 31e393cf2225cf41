package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"payflow/internal/config"
)

// DeclareBatchTopology declares the exchange, the work queue and the retry
// queue. The retry queue has no consumers: messages parked there with a
// per-message TTL are routed back to the work queue by the broker's
// dead-letter mechanism once the TTL expires, which is what implements the
// redelivery backoff.
func DeclareBatchTopology(client Client, cfg config.RabbitMQConfig) error {
	if err := client.DeclareExchange(cfg.ExchangeName, "direct"); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.ExchangeName, err)
	}

	if _, err := client.DeclareQueue(cfg.QueueName); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.QueueName, err)
	}

	if err := client.BindQueue(cfg.QueueName, cfg.ExchangeName, cfg.QueueName); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", cfg.QueueName, err)
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    cfg.ExchangeName,
		"x-dead-letter-routing-key": cfg.QueueName,
	}

	if _, err := client.DeclareQueueWithArgs(cfg.RetryQueue, retryArgs); err != nil {
		return fmt.Errorf("failed to declare retry queue %s: %w", cfg.RetryQueue, err)
	}

	if err := client.BindQueue(cfg.RetryQueue, cfg.ExchangeName, cfg.RetryQueue); err != nil {
		return fmt.Errorf("failed to bind retry queue %s: %w", cfg.RetryQueue, err)
	}

	log.Info().
		Str("exchange", cfg.ExchangeName).
		Str("queue", cfg.QueueName).
		Str("retryQueue", cfg.RetryQueue).
		Msg("Batch queue topology declared")

	return nil
}
