package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payflow/internal/config"
	"payflow/internal/controller"
	"payflow/internal/database"
	"payflow/internal/ingest"
	"payflow/internal/model"
)

type fakeBatchController struct {
	job       *model.BatchJob
	createErr error

	status    *controller.BatchJobStatus
	statusErr error

	retryErr   error
	retryCalls int

	snapshots    []controller.DeadLetterSnapshot
	snapshotsErr error
}

func (f *fakeBatchController) CreateBatchJob(ctx context.Context, data []byte, fileName string) (*model.BatchJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.job, nil
}

func (f *fakeBatchController) GetBatchJobStatus(ctx context.Context, jobID string) (*controller.BatchJobStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeBatchController) RetryDeadLetterItem(ctx context.Context, jobID, itemID string) error {
	f.retryCalls++
	return f.retryErr
}

func (f *fakeBatchController) ListDeadLetterSnapshots(ctx context.Context, jobID string, limit int) ([]controller.DeadLetterSnapshot, error) {
	if f.snapshotsErr != nil {
		return nil, f.snapshotsErr
	}
	if limit < len(f.snapshots) {
		return f.snapshots[:limit], nil
	}
	return f.snapshots, nil
}

func newTestServer(bc controller.BatchController) http.Handler {
	gin.SetMode(gin.TestMode)

	s := &Server{
		bc: bc,
		config: config.Config{
			AppName: "payflow",
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type"},
			},
		},
	}

	return s.RegisterRoutes()
}

func multipartUpload(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func TestCreateBatchHandlerAccepted(t *testing.T) {
	job := &model.BatchJob{
		ID:         primitive.NewObjectID(),
		Status:     model.JobPending,
		TotalItems: 3,
	}
	handler := newTestServer(&fakeBatchController{job: job})

	body, contentType := multipartUpload(t, "file", "payables.csv",
		"value,emissionDate,assignorId\n100.50,2024-01-15,9f3c2c6e-4b1a-4f4e-9a4b-2b7f6d8e1a3c\n")

	req := httptest.NewRequest(http.MethodPost, "/integrations/payable/batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp BatchJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	if resp.BatchJobID != job.ID.Hex() {
		t.Errorf("expected job id %s, got %s", job.ID.Hex(), resp.BatchJobID)
	}
	if resp.Status != "PENDING" || resp.TotalItems != 3 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Message != "Batch job created successfully" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestCreateBatchHandlerMissingFile(t *testing.T) {
	handler := newTestServer(&fakeBatchController{})

	req := httptest.NewRequest(http.MethodPost, "/integrations/payable/batch",
		strings.NewReader("not a multipart body"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "File is required") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestCreateBatchHandlerValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"too large", ingest.ErrFileTooLarge, http.StatusBadRequest},
		{"wrong type", ingest.ErrUnsupportedFileType, http.StatusBadRequest},
		{"malformed", ingest.ErrMalformedFile, http.StatusBadRequest},
		{"too many items", ingest.ErrTooManyItems, http.StatusBadRequest},
		{"empty", ingest.ErrEmptyOrInvalidFile, http.StatusBadRequest},
		{"storage outage", fmt.Errorf("mongo down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(&fakeBatchController{createErr: tt.err})

			body, contentType := multipartUpload(t, "file", "payables.csv", "value\n1\n")
			req := httptest.NewRequest(http.MethodPost, "/integrations/payable/batch", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetBatchStatusHandler(t *testing.T) {
	status := &controller.BatchJobStatus{
		ID:             primitive.NewObjectID().Hex(),
		Status:         "PROCESSING",
		TotalItems:     10,
		ProcessedItems: 4,
		Progress:       40,
	}
	handler := newTestServer(&fakeBatchController{status: status})

	req := httptest.NewRequest(http.MethodGet, "/integrations/payable/batch/"+status.ID, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp controller.BatchJobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	if resp.Progress != 40 || resp.Status != "PROCESSING" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGetBatchStatusHandlerNotFound(t *testing.T) {
	handler := newTestServer(&fakeBatchController{statusErr: database.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/integrations/payable/batch/whatever", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Batch job not found") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestListDeadLettersHandler(t *testing.T) {
	snapshots := []controller.DeadLetterSnapshot{
		{
			ID:           primitive.NewObjectID().Hex(),
			BatchItemID:  primitive.NewObjectID().Hex(),
			ErrorMessage: "persistent rejection",
			RetryCount:   4,
		},
	}
	handler := newTestServer(&fakeBatchController{snapshots: snapshots})

	jobID := primitive.NewObjectID().Hex()
	req := httptest.NewRequest(http.MethodGet,
		"/integrations/payable/batch/"+jobID+"/dead-letters", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DeadLetters []controller.DeadLetterSnapshot `json:"deadLetters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	if len(resp.DeadLetters) != 1 || resp.DeadLetters[0].RetryCount != 4 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestListDeadLettersHandlerNotFound(t *testing.T) {
	handler := newTestServer(&fakeBatchController{snapshotsErr: database.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet,
		"/integrations/payable/batch/abc/dead-letters", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRetryBatchItemHandler(t *testing.T) {
	bc := &fakeBatchController{}
	handler := newTestServer(bc)

	jobID := primitive.NewObjectID().Hex()
	itemID := primitive.NewObjectID().Hex()

	req := httptest.NewRequest(http.MethodPost,
		"/integrations/payable/batch/"+jobID+"/items/"+itemID+"/retry", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if bc.retryCalls != 1 {
		t.Errorf("expected one retry call, got %d", bc.retryCalls)
	}

	var resp RetryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	if resp.BatchJobID != jobID || resp.BatchItemID != itemID {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Message != "Retry requested successfully" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestRetryBatchItemHandlerNotFound(t *testing.T) {
	handler := newTestServer(&fakeBatchController{retryErr: database.ErrNotFound})

	req := httptest.NewRequest(http.MethodPost,
		"/integrations/payable/batch/abc/items/def/retry", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dead-letter batch item not found") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	handler := newTestServer(&fakeBatchController{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payflow") {
		t.Errorf("expected app name in body, got %s", rec.Body.String())
	}
}
