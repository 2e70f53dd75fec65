package service

import (
	"context"
	"time"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/provisioning"
	"registration-service/internal/worker"
)

// RegistrationStore is the persistence surface the services depend on
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error)
	GetRegistrationByCorrelationID(ctx context.Context, correlationID string) (*models.Registration, error)
	GetRegistrationByGatewayOrderID(ctx context.Context, orderID string) (*models.Registration, error)
	GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error)
	HasCompletedRegistration(ctx context.Context, email string) (bool, error)
	DeletePendingByEmail(ctx context.Context, email string) (int64, error)
	CompletePayment(ctx context.Context, id, paymentID, method string, capturedAt time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, paymentID string) error
	SetLMSAccountID(ctx context.Context, id, accountID string) error
	SetAddonCreditStatus(ctx context.Context, id, status string) error
	UpsertCompleted(ctx context.Context, reg *models.Registration) error
}

// PaymentGateway creates remote orders and verifies gateway signatures
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, correlationID, receipt string) (*gateway.OrderRef, error)
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// AccountProvisioner manages accounts on the learning platform
type AccountProvisioner interface {
	FindByEmail(ctx context.Context, email string) (*provisioning.Account, error)
	Create(ctx context.Context, username, email, password string) (string, error)
	GrantCredits(ctx context.Context, accountID, tier string, amountPaid int64, credits int) error
}

// FulfillmentLocker serializes concurrent fulfillment attempts per
// registration id and caches processed gateway payment ids
type FulfillmentLocker interface {
	AcquireFulfillmentLock(ctx context.Context, registrationID string, ttl time.Duration) (bool, error)
	ReleaseFulfillmentLock(ctx context.Context, registrationID string) error
	MarkPaymentProcessed(ctx context.Context, paymentID string, ttl time.Duration) error
	IsPaymentProcessed(ctx context.Context, paymentID string) (bool, error)
}

// Notifier schedules background notification dispatch
type Notifier interface {
	Enqueue(job worker.NotificationJob) bool
}

// EventPublisher emits registration domain events
type EventPublisher interface {
	PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error
	PublishRegistrationRejected(ctx context.Context, event *models.RegistrationRejectedEvent) error
	PublishBulkImportFinished(ctx context.Context, event *models.BulkImportFinishedEvent) error
}
