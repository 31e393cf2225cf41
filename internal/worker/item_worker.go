package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payflow/internal/config"
	"payflow/internal/integration"
	"payflow/internal/model"
	"payflow/internal/rabbitmq"
)

// ItemWorker consumes queued item messages and drives each batch item
// through its state machine: PENDING -> PROCESSING -> PROCESSED | FAILED |
// DEAD_LETTER. FAILED items are parked on the retry queue and come back with
// a bumped attempt header; the broker's redelivery stays authoritative.
// ItemStore is the slice of the job store the worker mutates
type ItemStore interface {
	MarkBatchItemProcessing(ctx context.Context, id primitive.ObjectID) error
	MarkBatchItemProcessed(ctx context.Context, id primitive.ObjectID) error
	MarkBatchItemFailed(ctx context.Context, id primitive.ObjectID, retryCount int, errorMessage string) error
	MoveBatchItemToDeadLetter(ctx context.Context, jobID, itemID primitive.ObjectID, payable model.Payable, errorMessage string, retryCount int) error
	IncrementBatchJobCounters(ctx context.Context, id primitive.ObjectID, success bool) error
}

type ItemWorker struct {
	db         ItemStore
	queue      rabbitmq.Client
	payables   integration.PayablesAPI
	notifier   integration.Notifier
	aggregator CompletionChecker
	rabbitCfg  config.RabbitMQConfig
	batchCfg   config.BatchConfig

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// CompletionChecker is the slice of the completion aggregator the worker
// needs after every item outcome.
type CompletionChecker interface {
	CheckBatchCompletion(ctx context.Context, jobID primitive.ObjectID) error
}

func NewItemWorker(db ItemStore, queue rabbitmq.Client, payables integration.PayablesAPI,
	notifier integration.Notifier, aggregator CompletionChecker,
	rabbitCfg config.RabbitMQConfig, batchCfg config.BatchConfig) *ItemWorker {
	return &ItemWorker{
		db:         db,
		queue:      queue,
		payables:   payables,
		notifier:   notifier,
		aggregator: aggregator,
		rabbitCfg:  rabbitCfg,
		batchCfg:   batchCfg,
		shutdown:   make(chan struct{}),
	}
}

// Start declares the queue topology and launches the consumer pool. Workers
// drain a shared delivery channel; parallelism is bounded by the pool size
// and the channel prefetch.
func (w *ItemWorker) Start(ctx context.Context) error {
	if err := rabbitmq.DeclareBatchTopology(w.queue, w.rabbitCfg); err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("payable-worker-%s", primitive.NewObjectID().Hex())

	deliveries, err := w.queue.Consume(w.rabbitCfg.QueueName, consumerTag)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", w.rabbitCfg.QueueName, err)
	}

	for i := 0; i < w.batchCfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.runConsumer(ctx, i, deliveries)
	}

	log.Info().
		Int("workers", w.batchCfg.WorkerCount).
		Str("queue", w.rabbitCfg.QueueName).
		Str("consumerTag", consumerTag).
		Msg("Item worker pool started")

	return nil
}

// Stop signals the pool and waits for in-flight items to finish
func (w *ItemWorker) Stop() {
	close(w.shutdown)
	w.wg.Wait()
	log.Info().Msg("Item worker pool stopped")
}

func (w *ItemWorker) runConsumer(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("worker", id).Msg("Context cancelled, stopping item consumer")
			return
		case <-w.shutdown:
			log.Info().Int("worker", id).Msg("Shutdown signal received, stopping item consumer")
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn().Int("worker", id).Msg("Delivery channel closed, stopping item consumer")
				return
			}
			w.ProcessDelivery(ctx, delivery)
		}
	}
}

// ProcessDelivery handles one queued item message end to end
func (w *ItemWorker) ProcessDelivery(ctx context.Context, delivery amqp.Delivery) {
	var message model.ItemMessage
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		log.Error().Err(err).Msg("Malformed item message, rejecting")
		delivery.Nack(false, false) // don't requeue malformed messages
		return
	}

	jobID, err := primitive.ObjectIDFromHex(message.BatchJobID)
	if err != nil {
		log.Error().Str("batchJobId", message.BatchJobID).Msg("Invalid job id in message, rejecting")
		delivery.Nack(false, false)
		return
	}

	itemID, err := primitive.ObjectIDFromHex(message.BatchItemID)
	if err != nil {
		log.Error().Str("batchItemId", message.BatchItemID).Msg("Invalid item id in message, rejecting")
		delivery.Nack(false, false)
		return
	}

	attempt := rabbitmq.DeliveryAttempt(delivery.Headers)

	logger := log.With().
		Str("jobID", jobID.Hex()).
		Str("itemID", itemID.Hex()).
		Int("attempt", attempt).
		Logger()

	if err := w.db.MarkBatchItemProcessing(ctx, itemID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark item processing, parking for redelivery")
		w.parkForRedelivery(logger, delivery, attempt)
		return
	}

	_, err = w.payables.CreatePayable(ctx, message.Payable)
	if err != nil {
		w.handleFailure(ctx, logger, delivery, message, jobID, itemID, attempt, err)
		return
	}

	if err := w.db.MarkBatchItemProcessed(ctx, itemID); err != nil {
		logger.Error().Err(err).Msg("Payable created but item update failed, requeueing")
		delivery.Nack(false, true)
		return
	}

	// a lost increment can never be recovered and would wedge the job short
	// of completion, so the delivery must come back rather than be acked
	if err := w.db.IncrementBatchJobCounters(ctx, jobID, true); err != nil {
		logger.Error().Err(err).Msg("Failed to increment success counters, requeueing")
		delivery.Nack(false, true)
		return
	}

	w.checkCompletion(ctx, logger, jobID)

	logger.Info().Msg("Batch item processed")
	delivery.Ack(false)
}

// handleFailure applies the retry policy: park the message for backoff while
// attempts remain, escalate to dead-letter once they run out. The job's
// counters only move on the terminal outcome.
func (w *ItemWorker) handleFailure(ctx context.Context, logger zerolog.Logger, delivery amqp.Delivery,
	message model.ItemMessage, jobID, itemID primitive.ObjectID, attempt int, cause error) {

	errorMessage := cause.Error()

	if attempt < w.batchCfg.MaxAttempts {
		if err := w.db.MarkBatchItemFailed(ctx, itemID, attempt, errorMessage); err != nil {
			logger.Error().Err(err).Msg("Failed to record item failure, requeueing")
			delivery.Nack(false, true)
			return
		}

		delay := rabbitmq.RetryDelay(time.Duration(w.batchCfg.BackoffBaseMs)*time.Millisecond, attempt)

		headers := amqp.Table{
			rabbitmq.AttemptHeader: int32(attempt + 1),
		}

		if err := w.queue.PublishWithExpiration(w.rabbitCfg.ExchangeName, w.rabbitCfg.RetryQueue,
			delivery.Body, headers, delay); err != nil {
			logger.Error().Err(err).Msg("Failed to park item for retry, requeueing original")
			delivery.Nack(false, true)
			return
		}

		// cannot complete the job off a non-terminal outcome; the check is
		// a deliberate no-op here
		w.checkCompletion(ctx, logger, jobID)

		logger.Warn().
			Dur("retryIn", delay).
			Str("error", errorMessage).
			Msg("Batch item failed, scheduled for retry")

		delivery.Ack(false)
		return
	}

	if err := w.db.MoveBatchItemToDeadLetter(ctx, jobID, itemID, message.Payable, errorMessage, attempt); err != nil {
		logger.Error().Err(err).Msg("Failed to dead-letter item, requeueing")
		delivery.Nack(false, true)
		return
	}

	if err := w.db.IncrementBatchJobCounters(ctx, jobID, false); err != nil {
		logger.Error().Err(err).Msg("Failed to increment failure counters, requeueing")
		delivery.Nack(false, true)
		return
	}

	alert := integration.DeadLetterAlert{
		BatchJobID:   message.BatchJobID,
		BatchItemID:  message.BatchItemID,
		ErrorMessage: errorMessage,
	}
	if err := w.notifier.SendDeadLetterAlert(ctx, alert); err != nil {
		logger.Warn().Err(err).Msg("Failed to send dead-letter alert")
	}

	w.checkCompletion(ctx, logger, jobID)

	logger.Error().
		Str("error", errorMessage).
		Msg("Batch item exhausted retries, dead-lettered")

	delivery.Ack(false)
}

// parkForRedelivery puts the delivery on the retry queue for one backoff
// window with its attempt header unchanged. Infrastructure faults take this
// path instead of a raw requeue, which would hot-loop against a down store.
func (w *ItemWorker) parkForRedelivery(logger zerolog.Logger, delivery amqp.Delivery, attempt int) {
	delay := rabbitmq.RetryDelay(time.Duration(w.batchCfg.BackoffBaseMs)*time.Millisecond, 1)

	headers := amqp.Table{
		rabbitmq.AttemptHeader: int32(attempt),
	}

	if err := w.queue.PublishWithExpiration(w.rabbitCfg.ExchangeName, w.rabbitCfg.RetryQueue,
		delivery.Body, headers, delay); err != nil {
		logger.Error().Err(err).Msg("Failed to park delivery, requeueing")
		delivery.Nack(false, true)
		return
	}

	logger.Warn().Dur("retryIn", delay).Msg("Delivery parked for redelivery")
	delivery.Ack(false)
}

func (w *ItemWorker) checkCompletion(ctx context.Context, logger zerolog.Logger, jobID primitive.ObjectID) {
	if err := w.aggregator.CheckBatchCompletion(ctx, jobID); err != nil {
		logger.Error().Err(err).Msg("Completion check failed")
	}
}
