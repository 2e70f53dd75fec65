package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"registration-service/internal/util"

	"go.uber.org/zap"
)

// Client talks to the payment gateway's REST API and verifies its signatures
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
	logger        *zap.Logger
}

// OrderRef is the gateway order created for a registration draft
type OrderRef struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// NewClient creates a new gateway client
func NewClient(baseURL, keyID, keySecret, webhookSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        util.GetLogger(),
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

// CreateOrder creates a remote order for the computed amount. The correlation
// id goes into the order notes so the captured-payment event can be matched
// back to the registration.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, correlationID, receipt string) (*OrderRef, error) {
	start := time.Now()
	defer func() {
		util.GatewayOrderLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Notes:    map[string]string{"registration_correlation_id": correlationID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway order request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Gateway rejected order creation",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return nil, fmt.Errorf("gateway order creation failed with status %d", resp.StatusCode)
	}

	var order OrderRef
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	util.GatewayOrdersCreatedTotal.Inc()
	c.logger.Info("Gateway order created",
		zap.String("order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency))

	return &order, nil
}

// VerifyCheckoutSignature verifies the signature the client receives after a
// checkout payment: HMAC-SHA256 over "orderID|paymentID" with the key secret
func (c *Client) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature authenticates an inbound webhook delivery:
// HMAC-SHA256 over the raw request body with the webhook secret
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
