package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/provisioning"
	"registration-service/internal/util"
	"registration-service/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature rejects an event or verification call whose
	// signature does not match
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrAmountMismatch rejects a captured payment whose amount does not
	// match the amount re-derived from the stored registration inputs
	ErrAmountMismatch = errors.New("captured amount does not match expected order amount")

	// ErrUnknownOrder is returned by the client verification path when no
	// registration matches the gateway order
	ErrUnknownOrder = errors.New("no registration found for gateway order")
)

// fulfillLockTTL bounds how long a crashed handler can hold the
// per-registration lock
const fulfillLockTTL = 30 * time.Second

// processedPaymentTTL keeps recently fulfilled payment ids cached long
// enough to absorb the gateway's webhook retry window
const processedPaymentTTL = 24 * time.Hour

// FulfillmentService drives a verified payment through registration
// completion, account provisioning, addon crediting, and notification
// dispatch
type FulfillmentService struct {
	store       RegistrationStore
	gateway     PaymentGateway
	provisioner AccountProvisioner
	locker      FulfillmentLocker
	notifier    Notifier
	events      EventPublisher
	logger      *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	store RegistrationStore,
	gateway PaymentGateway,
	provisioner AccountProvisioner,
	locker FulfillmentLocker,
	notifier Notifier,
	events EventPublisher,
) *FulfillmentService {
	return &FulfillmentService{
		store:       store,
		gateway:     gateway,
		provisioner: provisioner,
		locker:      locker,
		notifier:    notifier,
		events:      events,
		logger:      util.GetLogger(),
	}
}

// HandlePaymentCaptured processes an inbound payment-captured webhook
// delivery. Signature failures return ErrInvalidSignature with nothing
// mutated; unknown or foreign events are acknowledged as no-ops so upstream
// retry storms never build up.
func (f *FulfillmentService) HandlePaymentCaptured(ctx context.Context, rawBody []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandlePaymentCaptured")
	defer span.End()

	if !f.gateway.VerifyWebhookSignature(rawBody, signature) {
		util.RegistrationsRejectedTotal.WithLabelValues("signature").Inc()
		return ErrInvalidSignature
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		f.logger.Warn("Dropping malformed webhook body", zap.Error(err))
		util.WebhookUnknownEventsTotal.Inc()
		return nil
	}

	if event.Event != models.WebhookEventPaymentCaptured {
		util.WebhookUnknownEventsTotal.Inc()
		return nil
	}

	payment := event.Payload.Payment.Entity

	reg, err := f.resolveRegistration(ctx, payment)
	if err != nil {
		return err
	}
	if reg == nil {
		f.logger.Info("No registration for payment event, acknowledging",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", payment.Notes.RegistrationCorrelationID))
		util.WebhookUnknownEventsTotal.Inc()
		return nil
	}

	capturedAt := time.Now()
	if payment.CapturedAt > 0 {
		capturedAt = time.Unix(payment.CapturedAt, 0)
	}

	return f.fulfill(ctx, reg, payment.ID, payment.Method, payment.Amount, capturedAt)
}

// VerifyPayment is the client-side verification path. It authenticates the
// checkout signature and converges on the same transition logic as the
// webhook path.
func (f *FulfillmentService) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.VerifyPayment")
	defer span.End()

	if !f.gateway.VerifyCheckoutSignature(orderID, paymentID, signature) {
		util.RegistrationsRejectedTotal.WithLabelValues("signature").Inc()
		return ErrInvalidSignature
	}

	reg, err := f.store.GetRegistrationByGatewayOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to resolve registration for order %s: %w", orderID, err)
	}
	if reg == nil {
		return ErrUnknownOrder
	}

	return f.fulfill(ctx, reg, paymentID, "checkout", reg.OrderAmountMinor, time.Now())
}

func (f *FulfillmentService) resolveRegistration(ctx context.Context, payment models.PaymentEntity) (*models.Registration, error) {
	if payment.Notes.RegistrationCorrelationID != "" {
		reg, err := f.store.GetRegistrationByCorrelationID(ctx, payment.Notes.RegistrationCorrelationID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve registration by correlation id: %w", err)
		}
		if reg != nil {
			return reg, nil
		}
	}

	if payment.OrderID == "" {
		return nil, nil
	}

	reg, err := f.store.GetRegistrationByGatewayOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve registration by order id: %w", err)
	}
	return reg, nil
}

// fulfill is the single transition path both event sources converge on
func (f *FulfillmentService) fulfill(ctx context.Context, reg *models.Registration, paymentID, method string, capturedAmount int64, capturedAt time.Time) error {
	if reg.PaymentStatus == models.PaymentStatusCompleted {
		util.WebhookDuplicatesTotal.Inc()
		f.logger.Info("Registration already completed, skipping",
			zap.String("registration_id", reg.ID),
			zap.String("payment_id", paymentID))
		return nil
	}

	if processed, err := f.locker.IsPaymentProcessed(ctx, paymentID); err == nil && processed {
		util.WebhookDuplicatesTotal.Inc()
		f.logger.Info("Payment already processed, skipping",
			zap.String("registration_id", reg.ID),
			zap.String("payment_id", paymentID))
		return nil
	}

	// Best-effort serialization of concurrent deliveries. The conditional
	// update below stays the authoritative guard, so a lock failure only
	// costs us the fast path.
	locked, err := f.locker.AcquireFulfillmentLock(ctx, reg.ID, fulfillLockTTL)
	if err != nil {
		f.logger.Warn("Fulfillment lock unavailable, relying on conditional update",
			zap.String("registration_id", reg.ID),
			zap.Error(err))
	}
	if locked {
		defer func() {
			if err := f.locker.ReleaseFulfillmentLock(context.Background(), reg.ID); err != nil {
				f.logger.Warn("Failed to release fulfillment lock",
					zap.String("registration_id", reg.ID),
					zap.Error(err))
			}
		}()
	}

	expectedAmount := f.expectedAmount(reg)
	if capturedAmount != expectedAmount {
		f.logger.Error("Captured amount mismatch, rejecting registration",
			zap.String("registration_id", reg.ID),
			zap.String("payment_id", paymentID),
			zap.Int64("expected", expectedAmount),
			zap.Int64("captured", capturedAmount))

		if err := f.store.MarkRejected(ctx, reg.ID, paymentID); err != nil {
			f.logger.Error("Failed to mark registration rejected",
				zap.String("registration_id", reg.ID),
				zap.Error(err))
		}
		util.RegistrationsRejectedTotal.WithLabelValues("amount_mismatch").Inc()

		f.publishRejected(ctx, reg, paymentID, "amount_mismatch")
		return ErrAmountMismatch
	}

	applied, err := f.store.CompletePayment(ctx, reg.ID, paymentID, method, capturedAt)
	if err != nil {
		return fmt.Errorf("failed to complete payment for registration %s: %w", reg.ID, err)
	}
	if !applied {
		// A concurrent delivery won the conditional update.
		util.WebhookDuplicatesTotal.Inc()
		return nil
	}

	reg.PaymentID = paymentID
	reg.PaymentStatus = models.PaymentStatusCompleted
	reg.PaymentMethod = method
	reg.CapturedAt = &capturedAt
	reg.Published = true

	if err := f.locker.MarkPaymentProcessed(ctx, paymentID, processedPaymentTTL); err != nil {
		f.logger.Warn("Failed to cache processed payment id",
			zap.String("payment_id", paymentID),
			zap.Error(err))
	}

	util.RegistrationsCompletedTotal.Inc()
	f.logger.Info("Registration completed and published",
		zap.String("registration_id", reg.ID),
		zap.String("payment_id", paymentID))

	f.publishCompleted(ctx, reg)

	// Downstream integrations never roll back the committed payment state.
	password := f.provisionAccount(ctx, reg)
	f.grantAddonCredits(ctx, reg)
	f.scheduleNotifications(reg, password)

	return nil
}

// expectedAmount re-derives the payable amount from the stored registration
// inputs to detect tampering
func (f *FulfillmentService) expectedAmount(reg *models.Registration) int64 {
	var addonPrice float64
	if reg.AddonID != nil {
		if reg.IsOverseas {
			if reg.AddonPriceUSD != nil {
				addonPrice = float64(*reg.AddonPriceUSD)
			}
		} else {
			if reg.AddonPriceINR != nil {
				addonPrice = float64(*reg.AddonPriceINR)
			}
		}
	}

	amount, _ := pricing.OrderAmount(reg.RegistrationFee, addonPrice, reg.IsOverseas)
	return amount
}

// provisionAccount looks up or creates the learning platform account and
// returns the generated one-time password when a new account was created.
// Failures are logged and never escalate.
func (f *FulfillmentService) provisionAccount(ctx context.Context, reg *models.Registration) string {
	account, err := f.provisioner.FindByEmail(ctx, reg.Email)
	if err != nil {
		util.ProvisioningFailedTotal.WithLabelValues("lookup").Inc()
		f.logger.Error("Account lookup failed",
			zap.String("registration_id", reg.ID),
			zap.Error(err))
		return ""
	}

	password := ""
	if !account.Registered {
		password = generatePassword()

		_, err := f.provisioner.Create(ctx, reg.Name, reg.Email, password)
		if err != nil && !errors.Is(err, provisioning.ErrAlreadyRegistered) {
			util.ProvisioningFailedTotal.WithLabelValues("create").Inc()
			f.logger.Error("Account creation failed",
				zap.String("registration_id", reg.ID),
				zap.Error(err))
			return ""
		}
		if errors.Is(err, provisioning.ErrAlreadyRegistered) {
			password = ""
		}

		// Re-verify the lookup rather than trusting the create response:
		// the platform's reads are eventually consistent.
		account, err = f.provisioner.FindByEmail(ctx, reg.Email)
		if err != nil {
			util.ProvisioningFailedTotal.WithLabelValues("verify").Inc()
			f.logger.Error("Post-create account lookup failed",
				zap.String("registration_id", reg.ID),
				zap.Error(err))
			return password
		}
	}

	if !account.Registered || account.ID == "" {
		util.ProvisioningFailedTotal.WithLabelValues("unresolved").Inc()
		f.logger.Error("Account still unresolved after provisioning",
			zap.String("registration_id", reg.ID))
		return password
	}

	reg.LMSAccountID = &account.ID
	if err := f.store.SetLMSAccountID(ctx, reg.ID, account.ID); err != nil {
		f.logger.Error("Failed to persist account id",
			zap.String("registration_id", reg.ID),
			zap.Error(err))
	}

	return password
}

// grantAddonCredits submits the credit grant for the selected addon tier.
// Failures are logged and never escalate.
func (f *FulfillmentService) grantAddonCredits(ctx context.Context, reg *models.Registration) {
	if reg.AddonID == nil || reg.LMSAccountID == nil {
		return
	}

	credits := provisioning.CreditsForTier(*reg.AddonID)
	if credits == 0 {
		f.logger.Warn("Unknown addon tier, skipping credit grant",
			zap.String("registration_id", reg.ID),
			zap.String("addon_id", *reg.AddonID))
		f.setCreditStatus(ctx, reg, models.CreditStatusSkipped)
		return
	}

	err := f.provisioner.GrantCredits(ctx, *reg.LMSAccountID, *reg.AddonID, reg.OrderAmountMinor, credits)
	if err != nil {
		util.AddonCreditsFailedTotal.Inc()
		f.logger.Error("Addon credit grant failed",
			zap.String("registration_id", reg.ID),
			zap.String("addon_id", *reg.AddonID),
			zap.Error(err))
		f.setCreditStatus(ctx, reg, models.CreditStatusFailed)
		return
	}

	f.setCreditStatus(ctx, reg, models.CreditStatusGranted)
}

func (f *FulfillmentService) setCreditStatus(ctx context.Context, reg *models.Registration, status string) {
	reg.AddonCreditStatus = status
	if err := f.store.SetAddonCreditStatus(ctx, reg.ID, status); err != nil {
		f.logger.Error("Failed to persist credit status",
			zap.String("registration_id", reg.ID),
			zap.Error(err))
	}
}

// scheduleNotifications hands the confirmation off to the background pool;
// the webhook response never waits on notification delivery
func (f *FulfillmentService) scheduleNotifications(reg *models.Registration, password string) {
	regCopy := *reg
	f.notifier.Enqueue(worker.NotificationJob{
		Registration: &regCopy,
		Password:     password,
	})
}

func (f *FulfillmentService) publishCompleted(ctx context.Context, reg *models.Registration) {
	addonID := ""
	if reg.AddonID != nil {
		addonID = *reg.AddonID
	}

	event := &models.RegistrationCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRegistrationCompleted,
			Timestamp: time.Now(),
		},
		RegistrationID: reg.ID,
		Email:          reg.Email,
		PaymentID:      reg.PaymentID,
		AmountMinor:    reg.OrderAmountMinor,
		Currency:       reg.OrderCurrency,
		AddonID:        addonID,
	}

	if err := f.events.PublishRegistrationCompleted(ctx, event); err != nil {
		f.logger.Error("Failed to publish RegistrationCompleted event", zap.Error(err))
	}
}

func (f *FulfillmentService) publishRejected(ctx context.Context, reg *models.Registration, paymentID, reason string) {
	event := &models.RegistrationRejectedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRegistrationRejected,
			Timestamp: time.Now(),
		},
		RegistrationID: reg.ID,
		Email:          reg.Email,
		PaymentID:      paymentID,
		Reason:         reason,
	}

	if err := f.events.PublishRegistrationRejected(ctx, event); err != nil {
		f.logger.Error("Failed to publish RegistrationRejected event", zap.Error(err))
	}
}

// generatePassword produces the one-time default password for a newly
// provisioned account
func generatePassword() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
