package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"payflow/internal/model"
)

// BatchJobDatabase defines batch-job persistence operations
type BatchJobDatabase interface {
	// Create a new batch job
	CreateBatchJob(ctx context.Context, job *model.BatchJob) error

	// Get a batch job by ID
	GetBatchJobByID(ctx context.Context, id primitive.ObjectID) (*model.BatchJob, error)

	// Record where the source file was stored
	SetBatchJobFilePath(ctx context.Context, id primitive.ObjectID, filePath string) error

	// Transition the job to PROCESSING and stamp startedAt
	MarkBatchJobProcessing(ctx context.Context, id primitive.ObjectID) error

	// Mark the job FAILED after an unrecoverable creation-phase error
	MarkBatchJobFailed(ctx context.Context, id primitive.ObjectID) error

	// Atomically bump processedItems plus successCount or failureCount.
	// This must never be a read-modify-write: items from the same job
	// complete concurrently on different workers.
	IncrementBatchJobCounters(ctx context.Context, id primitive.ObjectID, success bool) error

	// Conditionally move a PROCESSING job to the given terminal status.
	// Reports whether this call performed the transition, so racing
	// finalizers can agree on who fires the completion notification.
	FinalizeBatchJob(ctx context.Context, id primitive.ObjectID, status model.BatchJobStatus) (bool, error)
}

// CreateBatchJob creates a new batch job in the database
func (m *mongoDB) CreateBatchJob(ctx context.Context, job *model.BatchJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	if job.Status == "" {
		job.Status = model.JobPending
	}

	_, err := m.jobsCol.InsertOne(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to create batch job")
		return err
	}

	log.Debug().Str("jobID", job.ID.Hex()).Int("totalItems", job.TotalItems).Msg("Created batch job")
	return nil
}

// GetBatchJobByID retrieves a batch job by its ID
func (m *mongoDB) GetBatchJobByID(ctx context.Context, id primitive.ObjectID) (*model.BatchJob, error) {
	var job model.BatchJob
	err := m.jobsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to get batch job")
		return nil, err
	}

	return &job, nil
}

// SetBatchJobFilePath records the durable-storage location of the source file
func (m *mongoDB) SetBatchJobFilePath(ctx context.Context, id primitive.ObjectID, filePath string) error {
	update := bson.M{
		"$set": bson.M{
			"file_path":  filePath,
			"updated_at": time.Now(),
		},
	}

	_, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to set batch job file path")
		return err
	}

	return nil
}

// MarkBatchJobProcessing transitions the job to PROCESSING and stamps startedAt
func (m *mongoDB) MarkBatchJobProcessing(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":     model.JobProcessing,
			"started_at": now,
			"updated_at": now,
		},
	}

	_, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to mark batch job processing")
		return err
	}

	log.Debug().Str("jobID", id.Hex()).Msg("Batch job processing")
	return nil
}

// MarkBatchJobFailed marks the job FAILED. Used when the background
// creation phase dies before any item is enqueued.
func (m *mongoDB) MarkBatchJobFailed(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{
		"$set": bson.M{
			"status":     model.JobFailed,
			"updated_at": time.Now(),
		},
	}

	_, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to mark batch job failed")
		return err
	}

	return nil
}

// IncrementBatchJobCounters atomically bumps the per-job counters
func (m *mongoDB) IncrementBatchJobCounters(ctx context.Context, id primitive.ObjectID, success bool) error {
	inc := bson.M{"processed_items": 1}
	if success {
		inc["success_count"] = 1
	} else {
		inc["failure_count"] = 1
	}

	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Bool("success", success).Msg("Failed to increment batch job counters")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// FinalizeBatchJob conditionally swaps a PROCESSING job to a terminal status.
// The status filter is what makes concurrent finalizers safe: only one caller
// observes a modified document.
func (m *mongoDB) FinalizeBatchJob(ctx context.Context, id primitive.ObjectID, status model.BatchJobStatus) (bool, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":       status,
			"completed_at": now,
			"updated_at":   now,
		},
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": id, "status": model.JobProcessing}, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Str("status", string(status)).Msg("Failed to finalize batch job")
		return false, err
	}

	finalized := result.ModifiedCount > 0
	if finalized {
		log.Info().Str("jobID", id.Hex()).Str("status", string(status)).Msg("Batch job finalized")
	}

	return finalized, nil
}
