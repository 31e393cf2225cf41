package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"payflow/internal/database"
	"payflow/internal/ingest"
)

// BatchJobResponse is returned by the upload endpoint once the synchronous
// intake phase has finished; item processing continues in the background.
type BatchJobResponse struct {
	BatchJobID string `json:"batchJobId"`
	Status     string `json:"status"`
	TotalItems int    `json:"totalItems"`
	Message    string `json:"message"`
}

// RetryResponse acknowledges an operator-initiated dead-letter retry
type RetryResponse struct {
	BatchJobID  string `json:"batchJobId"`
	BatchItemID string `json:"batchItemId"`
	Message     string `json:"message"`
}

// createBatchHandler accepts a multipart CSV upload and creates a batch job
func (s *Server) createBatchHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	job, err := s.bc.CreateBatchJob(c.Request.Context(), data, fileHeader.Filename)
	if err != nil {
		if isFileValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		log.Error().Err(err).Str("fileName", fileHeader.Filename).Msg("Batch job creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create batch job"})
		return
	}

	c.JSON(http.StatusAccepted, BatchJobResponse{
		BatchJobID: job.ID.Hex(),
		Status:     string(job.Status),
		TotalItems: job.TotalItems,
		Message:    "Batch job created successfully",
	})
}

// getBatchStatusHandler returns the polling view of a batch job
func (s *Server) getBatchStatusHandler(c *gin.Context) {
	jobID := c.Param("batchJobId")

	status, err := s.bc.GetBatchJobStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch job not found"})
			return
		}

		log.Error().Err(err).Str("jobID", jobID).Msg("Failed to read batch job status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get batch job status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// listDeadLettersHandler returns the audit snapshots for a job's escalated
// items. The default page size matches the status preview.
func (s *Server) listDeadLettersHandler(c *gin.Context) {
	jobID := c.Param("batchJobId")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	snapshots, err := s.bc.ListDeadLetterSnapshots(c.Request.Context(), jobID, limit)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch job not found"})
			return
		}

		log.Error().Err(err).Str("jobID", jobID).Msg("Failed to list dead-letter items")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list dead-letter items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deadLetters": snapshots})
}

// retryBatchItemHandler re-enqueues a dead-lettered item
func (s *Server) retryBatchItemHandler(c *gin.Context) {
	jobID := c.Param("batchJobId")
	itemID := c.Param("batchItemId")

	err := s.bc.RetryDeadLetterItem(c.Request.Context(), jobID, itemID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Dead-letter batch item not found"})
			return
		}

		log.Error().Err(err).Str("jobID", jobID).Str("itemID", itemID).Msg("Dead-letter retry failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry batch item"})
		return
	}

	c.JSON(http.StatusAccepted, RetryResponse{
		BatchJobID:  jobID,
		BatchItemID: itemID,
		Message:     "Retry requested successfully",
	})
}

// isFileValidationError reports whether the error belongs to the upload
// validation taxonomy, which maps to a 400 with the cause
func isFileValidationError(err error) bool {
	return errors.Is(err, ingest.ErrFileTooLarge) ||
		errors.Is(err, ingest.ErrUnsupportedFileType) ||
		errors.Is(err, ingest.ErrMalformedFile) ||
		errors.Is(err, ingest.ErrTooManyItems) ||
		errors.Is(err, ingest.ErrEmptyOrInvalidFile)
}
