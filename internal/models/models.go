package models

import "time"

// Registration represents an event registration and its fulfillment state
type Registration struct {
	ID            string `db:"id" json:"id"`
	CorrelationID string `db:"correlation_id" json:"correlation_id"`

	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	Phone      string     `db:"phone" json:"phone"`
	School     string     `db:"school" json:"school"`
	Grade      string     `db:"grade" json:"grade"`
	Section    string     `db:"section" json:"section"`
	DOB        *time.Time `db:"dob" json:"dob,omitempty"`
	City       string     `db:"city" json:"city"`
	IsOverseas bool       `db:"is_overseas" json:"is_overseas"`

	AddonID          *string `db:"addon_id" json:"addon_id,omitempty"`
	AddonTitle       *string `db:"addon_title" json:"addon_title,omitempty"`
	AddonPriceINR    *int64  `db:"addon_price_inr" json:"addon_price_inr,omitempty"`
	AddonPriceUSD    *int64  `db:"addon_price_usd" json:"addon_price_usd,omitempty"`
	RegistrationFee  float64 `db:"registration_fee" json:"registration_fee"`
	OrderAmountMinor int64   `db:"order_amount_minor" json:"order_amount_minor"`
	OrderCurrency    string  `db:"order_currency" json:"order_currency"`

	GatewayOrderID string     `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	PaymentID      string     `db:"payment_id" json:"payment_id,omitempty"`
	PaymentStatus  string     `db:"payment_status" json:"payment_status"`
	PaymentMethod  string     `db:"payment_method" json:"payment_method,omitempty"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CapturedAt     *time.Time `db:"captured_at" json:"captured_at,omitempty"`

	LMSAccountID      *string `db:"lms_account_id" json:"lms_account_id,omitempty"`
	AddonCreditStatus string  `db:"addon_credit_status" json:"addon_credit_status,omitempty"`
	EmailSent         bool    `db:"email_sent" json:"email_sent"`
	MessagingSent     bool    `db:"messaging_sent" json:"messaging_sent"`

	Published bool      `db:"published" json:"published"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Addon is a purchasable upgrade attached to a registration
type Addon struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	PriceINR int64  `json:"price_inr"`
	PriceUSD int64  `json:"price_usd"`
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Addon credit statuses
const (
	CreditStatusNone    = "none"
	CreditStatusGranted = "granted"
	CreditStatusFailed  = "failed"
	CreditStatusSkipped = "skipped"
)

// BulkRow is one row of a bulk import payload. Payment is asserted out of
// band, so the row carries a payment reference instead of a gateway order.
type BulkRow struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	School     string `json:"school"`
	Grade      string `json:"grade"`
	Section    string `json:"section"`
	PaymentID  string `json:"payment_id"`
	IsOverseas bool   `json:"is_overseas"`
	AddonID    string `json:"addon_id,omitempty"`
	AddonTitle string `json:"addon_title,omitempty"`
	DOB        string `json:"dob,omitempty"`
	City       string `json:"city,omitempty"`
}

// RowError records a single failed bulk import row
type RowError struct {
	Row     int    `json:"row"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// BulkImportResult aggregates a bulk import run
type BulkImportResult struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors"`
}
