package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payflow/internal/model"
)

// BatchItemDatabase defines batch-item persistence operations
type BatchItemDatabase interface {
	// Bulk-insert a chunk of items for a job
	CreateBatchItems(ctx context.Context, items []*model.BatchItem) error

	// Transition the item to PROCESSING
	MarkBatchItemProcessing(ctx context.Context, id primitive.ObjectID) error

	// Transition the item to PROCESSED and stamp processedAt
	MarkBatchItemProcessed(ctx context.Context, id primitive.ObjectID) error

	// Record a transient failure: FAILED status, attempt count, error message
	MarkBatchItemFailed(ctx context.Context, id primitive.ObjectID, retryCount int, errorMessage string) error

	// Reset a DEAD_LETTER item back to PENDING for an operator-initiated
	// retry. Returns ErrNotFound unless the item exists under the job in
	// DEAD_LETTER state.
	ResetDeadLetterItem(ctx context.Context, jobID, itemID primitive.ObjectID) (*model.BatchItem, error)

	// List up to limit DEAD_LETTER items for a job
	ListDeadLetterBatchItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.BatchItem, error)
}

// CreateBatchItems bulk-inserts a chunk of items
func (m *mongoDB) CreateBatchItems(ctx context.Context, items []*model.BatchItem) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(items))
	for _, item := range items {
		if item.ID.IsZero() {
			item.ID = primitive.NewObjectID()
		}
		if item.Status == "" {
			item.Status = model.ItemPending
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		docs = append(docs, item)
	}

	_, err := m.itemsCol.InsertMany(ctx, docs)
	if err != nil {
		log.Error().Err(err).Int("count", len(items)).Msg("Failed to create batch items")
		return err
	}

	log.Debug().Int("count", len(items)).Str("jobID", items[0].BatchJobID.Hex()).Msg("Created batch items")
	return nil
}

// MarkBatchItemProcessing transitions the item to PROCESSING
func (m *mongoDB) MarkBatchItemProcessing(ctx context.Context, id primitive.ObjectID) error {
	return m.updateItem(ctx, id, bson.M{
		"status":     model.ItemProcessing,
		"updated_at": time.Now(),
	}, nil)
}

// MarkBatchItemProcessed transitions the item to PROCESSED
func (m *mongoDB) MarkBatchItemProcessed(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	return m.updateItem(ctx, id, bson.M{
		"status":       model.ItemProcessed,
		"processed_at": now,
		"updated_at":   now,
	}, nil)
}

// MarkBatchItemFailed records a transient failure. The queue's redelivery
// remains authoritative; retry_count here only mirrors the attempt number.
func (m *mongoDB) MarkBatchItemFailed(ctx context.Context, id primitive.ObjectID, retryCount int, errorMessage string) error {
	return m.updateItem(ctx, id, bson.M{
		"status":        model.ItemFailed,
		"retry_count":   retryCount,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}, nil)
}

// ResetDeadLetterItem conditionally resets a dead-lettered item to PENDING
func (m *mongoDB) ResetDeadLetterItem(ctx context.Context, jobID, itemID primitive.ObjectID) (*model.BatchItem, error) {
	filter := bson.M{
		"_id":          itemID,
		"batch_job_id": jobID,
		"status":       model.ItemDeadLetter,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      model.ItemPending,
			"retry_count": 0,
			"updated_at":  time.Now(),
		},
		"$unset": bson.M{
			"error_message": "",
			"processed_at":  "",
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var item model.BatchItem
	err := m.itemsCol.FindOneAndUpdate(ctx, filter, update, opts).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("itemID", itemID.Hex()).Msg("Failed to reset dead-letter item")
		return nil, err
	}

	log.Info().Str("itemID", itemID.Hex()).Str("jobID", jobID.Hex()).Msg("Dead-letter item reset to pending")
	return &item, nil
}

// ListDeadLetterBatchItems lists up to limit DEAD_LETTER items for a job
func (m *mongoDB) ListDeadLetterBatchItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.BatchItem, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"updated_at": -1})

	cursor, err := m.itemsCol.Find(ctx, bson.M{
		"batch_job_id": jobID,
		"status":       model.ItemDeadLetter,
	}, opts)
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID.Hex()).Msg("Failed to list dead-letter items")
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*model.BatchItem
	if err := cursor.All(ctx, &items); err != nil {
		log.Error().Err(err).Msg("Failed to decode dead-letter items")
		return nil, err
	}

	return items, nil
}

func (m *mongoDB) updateItem(ctx context.Context, id primitive.ObjectID, set bson.M, unset bson.M) error {
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := m.itemsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("itemID", id.Hex()).Msg("Failed to update batch item")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
