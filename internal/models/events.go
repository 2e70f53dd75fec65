package models

import "time"

// Event types
const (
	EventTypeRegistrationCompleted = "REGISTRATION_COMPLETED"
	EventTypeRegistrationRejected  = "REGISTRATION_REJECTED"
	EventTypeBulkImportFinished    = "BULK_IMPORT_FINISHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationCompletedEvent published when a payment is verified and the
// registration is published
type RegistrationCompletedEvent struct {
	BaseEvent
	RegistrationID string `json:"registration_id"`
	Email          string `json:"email"`
	PaymentID      string `json:"payment_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	AddonID        string `json:"addon_id,omitempty"`
}

// RegistrationRejectedEvent published when a captured payment fails the
// amount integrity check
type RegistrationRejectedEvent struct {
	BaseEvent
	RegistrationID string `json:"registration_id"`
	Email          string `json:"email"`
	PaymentID      string `json:"payment_id"`
	Reason         string `json:"reason"`
}

// BulkImportFinishedEvent published after a bulk import run
type BulkImportFinishedEvent struct {
	BaseEvent
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
