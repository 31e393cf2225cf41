package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payflow/internal/aws"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/database"
	"payflow/internal/ingest"
	"payflow/internal/model"
	"payflow/internal/rabbitmq"
)

const deadLetterPreviewLimit = 10

// BatchController owns batch job creation, status reads and operator-driven
// dead-letter recovery.
type BatchController interface {
	// CreateBatchJob validates and splits the uploaded CSV, persists the job
	// and returns as soon as the job exists; item materialization and
	// enqueueing continue in the background.
	CreateBatchJob(ctx context.Context, data []byte, fileName string) (*model.BatchJob, error)

	// GetBatchJobStatus reports best-known counters, progress and a preview
	// of dead-lettered items.
	GetBatchJobStatus(ctx context.Context, jobID string) (*BatchJobStatus, error)

	// RetryDeadLetterItem resets a dead-lettered item and re-enqueues it.
	// Job counters are deliberately untouched: the historical failure stays
	// counted even if the retry later succeeds.
	RetryDeadLetterItem(ctx context.Context, jobID, itemID string) error

	// ListDeadLetterSnapshots returns the immutable audit records for a
	// job's escalated items. Unlike the status preview, snapshots survive
	// operator retries.
	ListDeadLetterSnapshots(ctx context.Context, jobID string, limit int) ([]DeadLetterSnapshot, error)
}

// BatchJobStatus is the polling view of a job
type BatchJobStatus struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	TotalItems     int               `json:"totalItems"`
	ProcessedItems int               `json:"processedItems"`
	SuccessCount   int               `json:"successCount"`
	FailureCount   int               `json:"failureCount"`
	Progress       float64           `json:"progress"`
	StartedAt      *time.Time        `json:"startedAt"`
	CompletedAt    *time.Time        `json:"completedAt"`
	CreatedAt      time.Time         `json:"createdAt"`
	DeadLetters    []DeadLetterEntry `json:"deadLetters"`
}

// DeadLetterEntry is one dead-lettered item in the status preview
type DeadLetterEntry struct {
	ID           string    `json:"id"`
	ErrorMessage string    `json:"errorMessage"`
	RetryCount   int       `json:"retryCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DeadLetterSnapshot is the audit view of an escalated item, including the
// payable it carried when it exhausted its retries.
type DeadLetterSnapshot struct {
	ID           string        `json:"id"`
	BatchItemID  string        `json:"batchItemId"`
	Payable      model.Payable `json:"payable"`
	ErrorMessage string        `json:"errorMessage"`
	RetryCount   int           `json:"retryCount"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// BatchStore is the slice of the job store the coordinator needs
type BatchStore interface {
	CreateBatchJob(ctx context.Context, job *model.BatchJob) error
	GetBatchJobByID(ctx context.Context, id primitive.ObjectID) (*model.BatchJob, error)
	SetBatchJobFilePath(ctx context.Context, id primitive.ObjectID, filePath string) error
	MarkBatchJobProcessing(ctx context.Context, id primitive.ObjectID) error
	MarkBatchJobFailed(ctx context.Context, id primitive.ObjectID) error
	CreateBatchItems(ctx context.Context, items []*model.BatchItem) error
	ResetDeadLetterItem(ctx context.Context, jobID, itemID primitive.ObjectID) (*model.BatchItem, error)
	ListDeadLetterBatchItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.BatchItem, error)
	ListDeadLetterItems(ctx context.Context, jobID primitive.ObjectID, limit int) ([]*model.DeadLetterItem, error)
}

// Publisher is the enqueue half of the queue client
type Publisher interface {
	Publish(exchange, routingKey string, body []byte, headers amqp.Table) error
}

type batchController struct {
	db        BatchStore
	queue     Publisher
	files     aws.FileService
	cache     cache.Cache
	rabbitCfg config.RabbitMQConfig
	batchCfg  config.BatchConfig
	statusTTL time.Duration
}

// NewBatchController creates a new batch controller
func NewBatchController(db BatchStore, queue Publisher, files aws.FileService,
	statusCache cache.Cache, rabbitCfg config.RabbitMQConfig, batchCfg config.BatchConfig) BatchController {
	return &batchController{
		db:        db,
		queue:     queue,
		files:     files,
		cache:     statusCache,
		rabbitCfg: rabbitCfg,
		batchCfg:  batchCfg,
		statusTTL: time.Duration(batchCfg.StatusCacheTTLMs) * time.Millisecond,
	}
}

// CreateBatchJob runs the synchronous intake phase: file validation, CSV
// parsing, row validation and job persistence. Item creation and enqueueing
// are deferred to a background goroutine so a crash mid-creation cannot
// orphan queue messages referencing items that were never written.
func (c *batchController) CreateBatchJob(ctx context.Context, data []byte, fileName string) (*model.BatchJob, error) {
	if err := ingest.ValidateSize(len(data), c.batchCfg.MaxFileSizeBytes); err != nil {
		return nil, err
	}
	if err := ingest.ValidateExtension(fileName); err != nil {
		return nil, err
	}

	rows, err := ingest.Parse(data)
	if err != nil {
		return nil, err
	}

	if err := ingest.ValidateCount(len(rows), c.batchCfg.MaxItems); err != nil {
		return nil, err
	}

	payables := ingest.ValidateRows(rows)
	if len(payables) == 0 {
		return nil, fmt.Errorf("%w", ingest.ErrEmptyOrInvalidFile)
	}

	job := &model.BatchJob{
		FileName:   fileName,
		Status:     model.JobPending,
		TotalItems: len(payables),
	}

	if err := c.db.CreateBatchJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	fileKey := fmt.Sprintf("batches/%s.csv", job.ID.Hex())
	filePath, err := c.files.UploadFile(ctx, fileKey, bytes.NewReader(data))
	if err != nil {
		// the job can still run from memory; the stored copy is for audit
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to store batch source file")
	} else if err := c.db.SetBatchJobFilePath(ctx, job.ID, filePath); err != nil {
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to record batch file path")
	} else {
		job.FilePath = filePath
	}

	log.Info().
		Str("jobID", job.ID.Hex()).
		Str("fileName", fileName).
		Int("totalItems", job.TotalItems).
		Int("skippedRows", len(rows)-len(payables)).
		Msg("Batch job created")

	go c.materializeItems(job, payables)

	return job, nil
}

// materializeItems runs detached from the upload request: it creates items in
// bounded chunks, flips the job to PROCESSING and enqueues one message per
// item. Errors here are observability-only; the caller already got its 202.
func (c *batchController) materializeItems(job *model.BatchJob, payables []model.Payable) {
	ctx := context.Background()

	items := make([]*model.BatchItem, 0, len(payables))
	for _, payable := range payables {
		items = append(items, &model.BatchItem{
			ID:         primitive.NewObjectID(),
			BatchJobID: job.ID,
			Payable:    payable,
			Status:     model.ItemPending,
		})
	}

	for _, chunk := range splitIntoChunks(items, c.batchCfg.ChunkSize) {
		if err := c.db.CreateBatchItems(ctx, chunk); err != nil {
			c.failJobCreation(ctx, job.ID, err)
			return
		}
	}

	if err := c.db.MarkBatchJobProcessing(ctx, job.ID); err != nil {
		c.failJobCreation(ctx, job.ID, err)
		return
	}

	for _, chunk := range splitIntoChunks(items, c.batchCfg.ChunkSize) {
		for _, item := range chunk {
			if err := c.enqueueItem(item); err != nil {
				c.failJobCreation(ctx, job.ID, err)
				return
			}
		}
	}

	log.Info().
		Str("jobID", job.ID.Hex()).
		Int("items", len(items)).
		Msg("Batch items created and enqueued")
}

func (c *batchController) failJobCreation(ctx context.Context, jobID primitive.ObjectID, err error) {
	log.Error().Err(err).Str("jobID", jobID.Hex()).Msg("Batch item creation phase failed")

	if markErr := c.db.MarkBatchJobFailed(ctx, jobID); markErr != nil {
		log.Error().Err(markErr).Str("jobID", jobID.Hex()).Msg("Failed to mark batch job failed")
	}
}

// enqueueItem publishes the item's message at attempt 1
func (c *batchController) enqueueItem(item *model.BatchItem) error {
	message := model.ItemMessage{
		BatchJobID:  item.BatchJobID.Hex(),
		BatchItemID: item.ID.Hex(),
		Payable:     item.Payable,
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal item message: %w", err)
	}

	headers := amqp.Table{
		rabbitmq.AttemptHeader: int32(1),
	}

	if err := c.queue.Publish(c.rabbitCfg.ExchangeName, c.rabbitCfg.QueueName, messageBytes, headers); err != nil {
		return fmt.Errorf("failed to publish item message: %w", err)
	}

	return nil
}

// GetBatchJobStatus reads the polling view, serving from the short-TTL cache
// when possible to absorb aggressive pollers.
func (c *batchController) GetBatchJobStatus(ctx context.Context, jobID string) (*BatchJobStatus, error) {
	id, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, database.ErrNotFound
	}

	cacheKey := statusCacheKey(jobID)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			var status BatchJobStatus
			if err := json.Unmarshal(cached, &status); err == nil {
				return &status, nil
			}
		}
	}

	job, err := c.db.GetBatchJobByID(ctx, id)
	if err != nil {
		return nil, err
	}

	deadItems, err := c.db.ListDeadLetterBatchItems(ctx, id, deadLetterPreviewLimit)
	if err != nil {
		return nil, err
	}

	deadLetters := make([]DeadLetterEntry, 0, len(deadItems))
	for _, item := range deadItems {
		deadLetters = append(deadLetters, DeadLetterEntry{
			ID:           item.ID.Hex(),
			ErrorMessage: item.ErrorMessage,
			RetryCount:   item.RetryCount,
			CreatedAt:    item.CreatedAt,
		})
	}

	status := &BatchJobStatus{
		ID:             job.ID.Hex(),
		Status:         string(job.Status),
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		SuccessCount:   job.SuccessCount,
		FailureCount:   job.FailureCount,
		Progress:       jobProgress(job),
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		CreatedAt:      job.CreatedAt,
		DeadLetters:    deadLetters,
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(status); err == nil {
			if err := c.cache.Set(ctx, cacheKey, encoded, c.statusTTL); err != nil {
				log.Debug().Err(err).Str("jobID", jobID).Msg("Failed to cache batch status")
			}
		}
	}

	return status, nil
}

// RetryDeadLetterItem resets the item and re-enqueues its original message
func (c *batchController) RetryDeadLetterItem(ctx context.Context, jobID, itemID string) error {
	jobOID, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return database.ErrNotFound
	}
	itemOID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return database.ErrNotFound
	}

	item, err := c.db.ResetDeadLetterItem(ctx, jobOID, itemOID)
	if err != nil {
		return err
	}

	if err := c.enqueueItem(item); err != nil {
		return fmt.Errorf("failed to re-enqueue dead-letter item: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Delete(ctx, statusCacheKey(jobID)); err != nil {
			log.Debug().Err(err).Str("jobID", jobID).Msg("Failed to invalidate batch status cache")
		}
	}

	log.Info().
		Str("jobID", jobID).
		Str("itemID", itemID).
		Msg("Dead-letter item re-enqueued")

	return nil
}

// ListDeadLetterSnapshots lists the audit records for a job's escalated items
func (c *batchController) ListDeadLetterSnapshots(ctx context.Context, jobID string, limit int) ([]DeadLetterSnapshot, error) {
	id, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, database.ErrNotFound
	}

	if _, err := c.db.GetBatchJobByID(ctx, id); err != nil {
		return nil, err
	}

	records, err := c.db.ListDeadLetterItems(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	snapshots := make([]DeadLetterSnapshot, 0, len(records))
	for _, record := range records {
		snapshots = append(snapshots, DeadLetterSnapshot{
			ID:           record.ID.Hex(),
			BatchItemID:  record.BatchItemID.Hex(),
			Payable:      record.Payable,
			ErrorMessage: record.ErrorMessage,
			RetryCount:   record.RetryCount,
			CreatedAt:    record.CreatedAt,
		})
	}

	return snapshots, nil
}

func statusCacheKey(jobID string) string {
	return "batch:status:" + jobID
}

// jobProgress clamps processedItems before dividing; a counter overrun is a
// bug, so it is logged rather than silently reported as >100%.
func jobProgress(job *model.BatchJob) float64 {
	if job.TotalItems <= 0 {
		return 0
	}

	processed := job.ProcessedItems
	if processed > job.TotalItems {
		log.Warn().
			Str("jobID", job.ID.Hex()).
			Int("processedItems", processed).
			Int("totalItems", job.TotalItems).
			Msg("Processed count exceeds total items")
		processed = job.TotalItems
	}

	progress := float64(processed) / float64(job.TotalItems) * 100
	return math.Round(progress*100) / 100
}

// splitIntoChunks divides a slice of items into chunks of the specified size
func splitIntoChunks[T any](items []T, chunkSize int) [][]T {
	if chunkSize <= 0 {
		return nil
	}

	if len(items) == 0 {
		return [][]T{}
	}

	numChunks := (len(items) + chunkSize - 1) / chunkSize
	chunks := make([][]T, 0, numChunks)

	for i := 0; i < len(items); i += chunkSize {
		end := i + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}

	return chunks
}
