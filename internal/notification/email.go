package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"registration-service/internal/util"

	"go.uber.org/zap"
)

// ErrEmailNotConfigured is returned when no email API endpoint is set
var ErrEmailNotConfigured = errors.New("email integration not configured")

// EmailRecipient is one recipient of a batch send with its merge fields
type EmailRecipient struct {
	Address     string            `json:"address"`
	MergeFields map[string]string `json:"merge_fields"`
}

type emailBatchRequest struct {
	From       string           `json:"from"`
	Subject    string           `json:"subject"`
	TemplateID string           `json:"template_id"`
	Recipients []EmailRecipient `json:"recipients"`
}

// EmailClient talks to the transactional email batch API
type EmailClient struct {
	apiURL      string
	apiKey      string
	fromAddress string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewEmailClient creates a new email client
func NewEmailClient(apiURL, apiKey, fromAddress string, timeout time.Duration) *EmailClient {
	return &EmailClient{
		apiURL:      apiURL,
		apiKey:      apiKey,
		fromAddress: fromAddress,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      util.GetLogger(),
	}
}

// SendBatch submits one templated batch send covering all recipients
func (c *EmailClient) SendBatch(ctx context.Context, subject, templateID string, recipients []EmailRecipient) error {
	if c.apiURL == "" {
		return ErrEmailNotConfigured
	}

	body, err := json.Marshal(emailBatchRequest{
		From:       c.fromAddress,
		Subject:    subject,
		TemplateID: templateID,
		Recipients: recipients,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email batch failed with status %d", resp.StatusCode)
	}
	return nil
}
