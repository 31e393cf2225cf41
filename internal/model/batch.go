package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchJobStatus represents the lifecycle state of a batch job
type BatchJobStatus string

const (
	JobPending         BatchJobStatus = "PENDING"
	JobProcessing      BatchJobStatus = "PROCESSING"
	JobCompleted       BatchJobStatus = "COMPLETED"
	JobFailed          BatchJobStatus = "FAILED"
	JobPartiallyFailed BatchJobStatus = "PARTIALLY_FAILED"
)

// IsTerminal reports whether the job can no longer change status
func (s BatchJobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobPartiallyFailed
}

// BatchItemStatus represents the lifecycle state of a single batch item
type BatchItemStatus string

const (
	ItemPending    BatchItemStatus = "PENDING"
	ItemProcessing BatchItemStatus = "PROCESSING"
	ItemProcessed  BatchItemStatus = "PROCESSED"
	ItemFailed     BatchItemStatus = "FAILED"
	ItemDeadLetter BatchItemStatus = "DEAD_LETTER"
)

// Payable is a single receivable row parsed from the uploaded CSV.
// It is created downstream by the integrations service; this service only
// validates and forwards it.
type Payable struct {
	Value        float64 `bson:"value" json:"value"`
	EmissionDate string  `bson:"emission_date" json:"emissionDate"`
	AssignorID   string  `bson:"assignor_id" json:"assignorId"`
}

// BatchJob tracks one CSV upload and its aggregate processing lifecycle.
// Counters are only ever incremented, and only through atomic updates at the
// storage layer: items from the same job finish concurrently on different
// workers.
type BatchJob struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileName       string             `bson:"file_name" json:"fileName"`
	FilePath       string             `bson:"file_path,omitempty" json:"filePath,omitempty"`
	Status         BatchJobStatus     `bson:"status" json:"status"`
	TotalItems     int                `bson:"total_items" json:"totalItems"`
	ProcessedItems int                `bson:"processed_items" json:"processedItems"`
	SuccessCount   int                `bson:"success_count" json:"successCount"`
	FailureCount   int                `bson:"failure_count" json:"failureCount"`
	StartedAt      *time.Time         `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

// BatchItem is one row of a batch job tracked independently through the
// state machine. RetryCount mirrors the queue's delivery attempt count; the
// queue remains authoritative for redelivery.
type BatchItem struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BatchJobID   primitive.ObjectID `bson:"batch_job_id" json:"batchJobId"`
	Payable      Payable            `bson:"payable" json:"payable"`
	Status       BatchItemStatus    `bson:"status" json:"status"`
	RetryCount   int                `bson:"retry_count" json:"retryCount"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"errorMessage,omitempty"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processedAt,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// DeadLetterItem is an immutable audit record written in the same
// transaction as the item's DEAD_LETTER transition.
type DeadLetterItem struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BatchJobID   primitive.ObjectID `bson:"batch_job_id" json:"batchJobId"`
	BatchItemID  primitive.ObjectID `bson:"batch_item_id" json:"batchItemId"`
	Payable      Payable            `bson:"payable" json:"payable"`
	ErrorMessage string             `bson:"error_message" json:"errorMessage"`
	RetryCount   int                `bson:"retry_count" json:"retryCount"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
}

// ItemMessage is the payload published to the queue, one per batch item.
type ItemMessage struct {
	BatchJobID  string  `json:"batchJobId"`
	BatchItemID string  `json:"batchItemId"`
	Payable     Payable `json:"payableData"`
}

// TerminalJobStatus derives the terminal status from the final counters.
// It is a pure function of the counters so that racing finalizers always
// agree on the outcome.
func TerminalJobStatus(successCount, failureCount int) BatchJobStatus {
	switch {
	case failureCount == 0:
		return JobCompleted
	case successCount == 0:
		return JobFailed
	default:
		return JobPartiallyFailed
	}
}
