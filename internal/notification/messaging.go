package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"registration-service/internal/util"

	"go.uber.org/zap"
)

// ErrMessagingNotConfigured is returned when no messaging endpoint is set
var ErrMessagingNotConfigured = errors.New("messaging integration not configured")

// Messaging template ids per addon tier
const (
	TemplateCredits = "registration-confirm-credits"
	TemplateBasic   = "registration-confirm-basic"
	TemplatePremium = "registration-confirm-premium"
	TemplateDefault = "registration-confirm"
)

// TemplateForTier maps an addon id to its messaging template. Unknown or
// absent addons use the default template.
func TemplateForTier(addonID string) string {
	switch addonID {
	case "credits":
		return TemplateCredits
	case "basic":
		return TemplateBasic
	case "premium":
		return TemplatePremium
	default:
		return TemplateDefault
	}
}

// NormalizePhone strips formatting and ensures the country-code prefix
func NormalizePhone(phone, countryCode string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "").Replace(phone)
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, countryCode) && len(cleaned) > 10 {
		return cleaned
	}
	return countryCode + cleaned
}

type messagingRequest struct {
	TemplateID string   `json:"template_id"`
	Phone      string   `json:"phone"`
	Params     []string `json:"params"`
}

// MessagingClient talks to the messaging provider's webhook API
type MessagingClient struct {
	webhookURL  string
	apiKey      string
	countryCode string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewMessagingClient creates a new messaging client
func NewMessagingClient(webhookURL, apiKey, countryCode string, timeout time.Duration) *MessagingClient {
	return &MessagingClient{
		webhookURL:  webhookURL,
		apiKey:      apiKey,
		countryCode: countryCode,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      util.GetLogger(),
	}
}

// Send delivers one templated message to a phone number
func (c *MessagingClient) Send(ctx context.Context, templateID, phone string, params []string) error {
	if c.webhookURL == "" {
		return ErrMessagingNotConfigured
	}

	body, err := json.Marshal(messagingRequest{
		TemplateID: templateID,
		Phone:      NormalizePhone(phone, c.countryCode),
		Params:     params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal messaging request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build messaging request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messaging request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("messaging send failed with status %d", resp.StatusCode)
	}

	c.logger.Info("Messaging notification sent",
		zap.String("template_id", templateID))
	return nil
}
