package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payflow/internal/model"
)

// DeadLetterDatabase defines the dead-letter escalation operations
type DeadLetterDatabase interface {
	// Atomically mark the item DEAD_LETTER and insert the audit snapshot.
	// The two writes share a transaction so the item can never appear
	// escalated without its snapshot, or vice versa.
	MoveBatchItemToDeadLetter(ctx context.Context, jobID, itemID primitive.ObjectID, payable model.Payable, errorMessage string, retryCount int) error

	// List the audit snapshots for a job
	ListDeadLetterItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.DeadLetterItem, error)
}

// MoveBatchItemToDeadLetter performs the compound dead-letter transition
func (m *mongoDB) MoveBatchItemToDeadLetter(ctx context.Context, jobID, itemID primitive.ObjectID, payable model.Payable, errorMessage string, retryCount int) error {
	session, err := m.client.StartSession()
	if err != nil {
		log.Error().Err(err).Str("itemID", itemID.Hex()).Msg("Failed to start dead-letter session")
		return err
	}
	defer session.EndSession(ctx)

	now := time.Now()

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		itemUpdate := bson.M{
			"$set": bson.M{
				"status":        model.ItemDeadLetter,
				"retry_count":   retryCount,
				"error_message": errorMessage,
				"updated_at":    now,
			},
		}

		result, err := m.itemsCol.UpdateOne(sc, bson.M{"_id": itemID}, itemUpdate)
		if err != nil {
			return nil, err
		}
		if result.MatchedCount == 0 {
			return nil, ErrNotFound
		}

		deadLetter := model.DeadLetterItem{
			ID:           primitive.NewObjectID(),
			BatchJobID:   jobID,
			BatchItemID:  itemID,
			Payable:      payable,
			ErrorMessage: errorMessage,
			RetryCount:   retryCount,
			CreatedAt:    now,
		}

		if _, err := m.deadLettersCol.InsertOne(sc, deadLetter); err != nil {
			return nil, err
		}

		return nil, nil
	})

	if err != nil {
		log.Error().Err(err).Str("itemID", itemID.Hex()).Str("jobID", jobID.Hex()).Msg("Failed to move batch item to dead letter")
		return err
	}

	log.Warn().
		Str("itemID", itemID.Hex()).
		Str("jobID", jobID.Hex()).
		Int("retryCount", retryCount).
		Str("error", errorMessage).
		Msg("Batch item moved to dead letter")

	return nil
}

// ListDeadLetterItems lists the audit snapshots for a job
func (m *mongoDB) ListDeadLetterItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.DeadLetterItem, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.deadLettersCol.Find(ctx, bson.M{"batch_job_id": jobID}, opts)
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID.Hex()).Msg("Failed to list dead-letter snapshots")
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*model.DeadLetterItem
	if err := cursor.All(ctx, &items); err != nil {
		log.Error().Err(err).Msg("Failed to decode dead-letter snapshots")
		return nil, err
	}

	return items, nil
}
