// Package provisioning integrates with the external learning platform:
// account lookup and creation, and addon credit grants.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"registration-service/internal/util"

	"go.uber.org/zap"
)

// ErrAlreadyRegistered is returned by Create when the platform already has an
// account for the email. Callers short-circuit to the existing account.
var ErrAlreadyRegistered = errors.New("account already registered")

// Credit grants per addon tier
const (
	CreditsTierCredits = 35
	CreditsTierBasic   = 240
	CreditsTierPremium = 315
)

// CreditsForTier maps an addon id to its fixed credit grant. Unknown tiers
// grant nothing.
func CreditsForTier(addonID string) int {
	switch addonID {
	case "credits":
		return CreditsTierCredits
	case "basic":
		return CreditsTierBasic
	case "premium":
		return CreditsTierPremium
	default:
		return 0
	}
}

// Account is the platform's view of a user
type Account struct {
	Registered bool   `json:"registered"`
	ID         string `json:"id,omitempty"`
}

// Client talks to the learning platform's provisioning API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new provisioning client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// FindByEmail looks up an account by email. A missing account is not an
// error; it comes back with Registered=false.
func (c *Client) FindByEmail(ctx context.Context, email string) (*Account, error) {
	endpoint := fmt.Sprintf("%s/users?email=%s", c.baseURL, url.QueryEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Account{Registered: false}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("account lookup failed with status %d", resp.StatusCode)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	return &account, nil
}

type createAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Create provisions a new account. The returned id must not be trusted for
// follow-up writes; the platform's reads are eventually consistent, so
// callers re-run FindByEmail to obtain the authoritative id.
func (c *Client) Create(ctx context.Context, username, email, password string) (string, error) {
	body, err := json.Marshal(createAccountRequest{Username: username, Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("account creation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", ErrAlreadyRegistered
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Account creation rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return "", fmt.Errorf("account creation failed with status %d", resp.StatusCode)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}

	util.AccountsProvisionedTotal.Inc()
	return account.ID, nil
}

type grantCreditsRequest struct {
	AccountID  string `json:"account_id"`
	Tier       string `json:"tier"`
	AmountPaid int64  `json:"amount_paid"`
	Credits    int    `json:"credits"`
}

// GrantCredits submits an addon credit grant for a provisioned account
func (c *Client) GrantCredits(ctx context.Context, accountID, tier string, amountPaid int64, credits int) error {
	body, err := json.Marshal(grantCreditsRequest{
		AccountID:  accountID,
		Tier:       tier,
		AmountPaid: amountPaid,
		Credits:    credits,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credits request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/credits", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build credits request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credit grant failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("credit grant failed with status %d", resp.StatusCode)
	}

	util.AddonCreditsGrantedTotal.Inc()
	return nil
}
