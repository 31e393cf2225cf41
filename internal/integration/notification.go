package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"payflow/internal/config"
)

// BatchReport summarizes a finished batch for the notification service.
// Retried mirrors the failure count, matching what the report consumer
// expects.
type BatchReport struct {
	To        string `json:"to"`
	BatchID   string `json:"batchId"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Retried   int    `json:"retried"`
}

// DeadLetterAlert notifies operations that an item exhausted its retries
type DeadLetterAlert struct {
	BatchJobID   string `json:"batchJobId"`
	BatchItemID  string `json:"batchItemId"`
	ErrorMessage string `json:"errorMessage"`
}

// Notifier sends batch lifecycle notifications. Both calls are best-effort:
// callers log failures and never let them fail the owning operation.
type Notifier interface {
	SendBatchReport(ctx context.Context, report BatchReport) error
	SendDeadLetterAlert(ctx context.Context, alert DeadLetterAlert) error
}

// NotificationClient talks to the notification service over HTTP
type NotificationClient struct {
	httpClient      *http.Client
	baseURL         string
	reportEmail     string
	operationsEmail string
}

func NewNotificationClient(cfg config.NotificationsConfig) *NotificationClient {
	return &NotificationClient{
		httpClient:      &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:         cfg.BaseURL,
		reportEmail:     cfg.ReportEmail,
		operationsEmail: cfg.OperationsEmail,
	}
}

// SendBatchReport posts the completion summary for a finished batch
func (c *NotificationClient) SendBatchReport(ctx context.Context, report BatchReport) error {
	if report.To == "" {
		report.To = c.reportEmail
	}

	return c.post(ctx, "/notifications/batch-report", report)
}

type sendEmailPayload struct {
	To       string          `json:"to"`
	Subject  string          `json:"subject"`
	Template string          `json:"template,omitempty"`
	Data     DeadLetterAlert `json:"data"`
}

// SendDeadLetterAlert posts an operations alert for an escalated item
func (c *NotificationClient) SendDeadLetterAlert(ctx context.Context, alert DeadLetterAlert) error {
	payload := sendEmailPayload{
		To:       c.operationsEmail,
		Subject:  fmt.Sprintf("Item %s moved to dead-letter", alert.BatchItemID),
		Template: "dead-letter",
		Data:     alert,
	}

	return c.post(ctx, "/notifications/send", payload)
}

func (c *NotificationClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling notification payload: %w", err)
	}

	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Notification service call failed")
		return fmt.Errorf("notification service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Str("body", string(respBody)).
			Msg("Notification service rejected request")
		return NewStatusError(resp.StatusCode, string(respBody))
	}

	return nil
}
