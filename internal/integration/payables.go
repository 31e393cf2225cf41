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
	"payflow/internal/model"
)

// PayablesAPI is the external payable-creation service. Every batch item
// results in exactly one create call; failures are retried through the queue.
type PayablesAPI interface {
	CreatePayable(ctx context.Context, payable model.Payable) (string, error)
}

// PayablesClient talks to the integrations service over HTTP
type PayablesClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewPayablesClient(cfg config.IntegrationsConfig) *PayablesClient {
	return &PayablesClient{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:    cfg.BaseURL,
	}
}

type createPayableResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// CreatePayable posts a validated payable to the integrations service and
// returns the created record's id.
func (c *PayablesClient) CreatePayable(ctx context.Context, payable model.Payable) (string, error) {
	body, err := json.Marshal(payable)
	if err != nil {
		return "", fmt.Errorf("error marshaling payable: %w", err)
	}

	url := fmt.Sprintf("%s/integrations/payable", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Payable creation request failed")
		return "", fmt.Errorf("integrations service unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := "failed to create payable"
		var errResp errorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Message != "" {
			message = errResp.Message
		}

		log.Warn().
			Int("status", resp.StatusCode).
			Str("message", message).
			Msg("Payable creation rejected")

		return "", NewStatusError(resp.StatusCode, message)
	}

	var created createPayableResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("error decoding create response: %w", err)
	}

	return created.ID, nil
}
