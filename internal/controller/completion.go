package controller

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payflow/internal/database"
	"payflow/internal/integration"
	"payflow/internal/model"
)

// CompletionAggregator decides whether a batch job has reached a terminal
// state. It must be invoked after every counter increment because completion
// can be reached by any of many concurrently-finishing items; it is safe to
// call any number of times.
type CompletionAggregator interface {
	CheckBatchCompletion(ctx context.Context, jobID primitive.ObjectID) error
}

type completionAggregator struct {
	db       database.BatchJobDatabase
	notifier integration.Notifier
}

func NewCompletionAggregator(db database.BatchJobDatabase, notifier integration.Notifier) CompletionAggregator {
	return &completionAggregator{
		db:       db,
		notifier: notifier,
	}
}

// CheckBatchCompletion finalizes the job once every item has a terminal
// outcome. The terminal status is a pure function of the counters, so racing
// callers always compute the same status; the conditional finalize in the
// store decides which single caller fires the report.
func (a *completionAggregator) CheckBatchCompletion(ctx context.Context, jobID primitive.ObjectID) error {
	job, err := a.db.GetBatchJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load batch job: %w", err)
	}

	if job.Status.IsTerminal() {
		return nil
	}

	if job.ProcessedItems < job.TotalItems {
		return nil
	}

	status := model.TerminalJobStatus(job.SuccessCount, job.FailureCount)

	finalized, err := a.db.FinalizeBatchJob(ctx, jobID, status)
	if err != nil {
		return fmt.Errorf("failed to finalize batch job: %w", err)
	}

	if !finalized {
		// another worker won the race; it owns the notification
		return nil
	}

	report := integration.BatchReport{
		BatchID:   jobID.Hex(),
		Succeeded: job.SuccessCount,
		Failed:    job.FailureCount,
		Retried:   job.FailureCount,
	}

	if err := a.notifier.SendBatchReport(ctx, report); err != nil {
		log.Warn().
			Err(err).
			Str("jobID", jobID.Hex()).
			Msg("Failed to send batch report notification")
	}

	return nil
}
