package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fulfillmentFixture struct {
	store       *fakeStore
	gateway     *fakeGateway
	provisioner *fakeProvisioner
	locker      *fakeLocker
	notifier    *fakeNotifier
	events      *fakeEvents
	service     *FulfillmentService
}

func newFulfillmentFixture() *fulfillmentFixture {
	f := &fulfillmentFixture{
		store:       newFakeStore(),
		gateway:     &fakeGateway{},
		provisioner: newFakeProvisioner(),
		locker:      newFakeLocker(),
		notifier:    &fakeNotifier{},
		events:      &fakeEvents{},
	}
	f.service = NewFulfillmentService(f.store, f.gateway, f.provisioner, f.locker, f.notifier, f.events)
	return f
}

// pendingRegistration seeds a domestic draft with the basic addon:
// (500+750)*1.18 = 1475.00 INR = 147500 paise
func (f *fulfillmentFixture) pendingRegistration() *models.Registration {
	addonID := "basic"
	addonTitle := "Basic Pack"
	priceINR := int64(750)
	priceUSD := int64(10)

	reg := &models.Registration{
		ID:               "reg-1",
		CorrelationID:    "corr-1",
		Name:             "Asha Rao",
		Email:            "asha@example.com",
		Phone:            "9876543210",
		Grade:            "8",
		IsOverseas:       false,
		AddonID:          &addonID,
		AddonTitle:       &addonTitle,
		AddonPriceINR:    &priceINR,
		AddonPriceUSD:    &priceUSD,
		RegistrationFee:  500,
		OrderAmountMinor: 147500,
		OrderCurrency:    "INR",
		GatewayOrderID:   "order_1",
		PaymentStatus:    models.PaymentStatusPending,
	}
	f.store.put(reg)
	return reg
}

func webhookBody(t *testing.T, correlationID, orderID, paymentID string, amount int64) []byte {
	t.Helper()

	event := models.WebhookEvent{
		Event: models.WebhookEventPaymentCaptured,
		Payload: models.WebhookPayload{
			Payment: models.WebhookPayment{
				Entity: models.PaymentEntity{
					ID:         paymentID,
					OrderID:    orderID,
					Method:     "upi",
					Amount:     amount,
					Currency:   "INR",
					CapturedAt: time.Now().Unix(),
					Notes: models.PaymentNotes{
						RegistrationCorrelationID: correlationID,
					},
				},
			},
		},
	}

	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandlePaymentCaptured(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	require.NoError(t, err)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
	assert.Equal(t, "pay_1", reg.PaymentID)
	assert.Equal(t, "upi", reg.PaymentMethod)
	assert.True(t, reg.Published)
	assert.NotNil(t, reg.CapturedAt)
	assert.NotNil(t, reg.VerifiedAt)

	// account provisioned and re-verified
	require.NotNil(t, reg.LMSAccountID)
	assert.Equal(t, 1, f.provisioner.createCalls)

	// basic tier credits granted
	require.Len(t, f.provisioner.grantCalls, 1)
	assert.Equal(t, "basic", f.provisioner.grantCalls[0].tier)
	assert.Equal(t, 240, f.provisioner.grantCalls[0].credits)
	assert.Equal(t, int64(147500), f.provisioner.grantCalls[0].amountPaid)
	assert.Equal(t, models.CreditStatusGranted, reg.AddonCreditStatus)

	// notifications scheduled off the response path
	assert.Equal(t, 1, f.notifier.jobCount())
	assert.NotEmpty(t, f.notifier.jobs[0].Password)

	require.Len(t, f.events.completed, 1)
	assert.Equal(t, "reg-1", f.events.completed[0].RegistrationID)
}

func TestHandlePaymentCapturedIdempotent(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig))
	}

	// exactly one application: one account, one credit grant, one dispatch
	assert.Equal(t, 1, f.provisioner.createCalls)
	assert.Len(t, f.provisioner.grantCalls, 1)
	assert.Equal(t, 1, f.notifier.jobCount())
	assert.Len(t, f.events.completed, 1)

	reg := f.store.get("reg-1")
	assert.Equal(t, "pay_1", reg.PaymentID)
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
}

func TestHandlePaymentCapturedConcurrentDeliveries(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.provisioner.createCalls)
	assert.Len(t, f.provisioner.grantCalls, 1)
	assert.Equal(t, 1, f.notifier.jobCount())
}

func TestHandlePaymentCapturedBadSignature(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// nothing mutated
	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusPending, reg.PaymentStatus)
	assert.False(t, reg.Published)
	assert.Equal(t, 0, f.provisioner.createCalls)
}

func TestHandlePaymentCapturedAmountMismatch(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 99999)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusFailed, reg.PaymentStatus)
	assert.False(t, reg.Published)

	// no provisioning, no crediting, no notifications
	assert.Equal(t, 0, f.provisioner.createCalls)
	assert.Empty(t, f.provisioner.grantCalls)
	assert.Equal(t, 0, f.notifier.jobCount())

	require.Len(t, f.events.rejected, 1)
	assert.Equal(t, "amount_mismatch", f.events.rejected[0].Reason)
}

func TestHandlePaymentCapturedUnknownEvent(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := []byte(`{"event":"payment.failed","payload":{}}`)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	assert.NoError(t, err)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusPending, reg.PaymentStatus)
}

func TestHandlePaymentCapturedUnknownCorrelation(t *testing.T) {
	f := newFulfillmentFixture()

	body := webhookBody(t, "corr-unknown", "order_unknown", "pay_1", 147500)

	// foreign events are acknowledged as no-ops
	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.provisioner.createCalls)
}

func TestHandlePaymentCapturedMalformedBody(t *testing.T) {
	f := newFulfillmentFixture()

	err := f.service.HandlePaymentCaptured(context.Background(), []byte(`{not json`), validWebhookSig)
	assert.NoError(t, err)
}

func TestProvisioningFailureDoesNotRevertCompletion(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()
	f.provisioner.failLookup = true

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	require.NoError(t, err)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
	assert.True(t, reg.Published)
	assert.Nil(t, reg.LMSAccountID)

	// notifications still go out for the confirmed payment
	assert.Equal(t, 1, f.notifier.jobCount())
}

func TestCreditGrantFailureDoesNotRevertCompletion(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()
	f.provisioner.failGrant = true

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	require.NoError(t, err)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
	assert.Equal(t, models.CreditStatusFailed, reg.AddonCreditStatus)
}

func TestExistingAccountShortCircuits(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()
	f.provisioner.accounts["asha@example.com"] = "acct_existing"

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	require.NoError(t, err)

	assert.Equal(t, 0, f.provisioner.createCalls)

	reg := f.store.get("reg-1")
	require.NotNil(t, reg.LMSAccountID)
	assert.Equal(t, "acct_existing", *reg.LMSAccountID)

	// no one-time password for an already-registered email
	require.Equal(t, 1, f.notifier.jobCount())
	assert.Empty(t, f.notifier.jobs[0].Password)
}

func TestUnknownAddonTierSkipsCrediting(t *testing.T) {
	f := newFulfillmentFixture()
	reg := f.pendingRegistration()

	unknown := "mystery"
	reg.AddonID = &unknown
	priceINR := int64(750)
	reg.AddonPriceINR = &priceINR
	f.store.put(reg)

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)

	err := f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig)
	require.NoError(t, err)

	assert.Empty(t, f.provisioner.grantCalls)

	stored := f.store.get("reg-1")
	assert.Equal(t, models.CreditStatusSkipped, stored.AddonCreditStatus)
}

func TestVerifyPayment(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	err := f.service.VerifyPayment(context.Background(), "order_1", "pay_1", validCheckoutSig)
	require.NoError(t, err)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
	assert.True(t, reg.Published)
	assert.Equal(t, 1, f.provisioner.createCalls)
}

func TestVerifyPaymentBadSignature(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	err := f.service.VerifyPayment(context.Background(), "order_1", "pay_1", "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	reg := f.store.get("reg-1")
	assert.Equal(t, models.PaymentStatusPending, reg.PaymentStatus)
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	f := newFulfillmentFixture()

	err := f.service.VerifyPayment(context.Background(), "order_missing", "pay_1", validCheckoutSig)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestWebhookThenVerifyConverge(t *testing.T) {
	f := newFulfillmentFixture()
	f.pendingRegistration()

	body := webhookBody(t, "corr-1", "order_1", "pay_1", 147500)
	require.NoError(t, f.service.HandlePaymentCaptured(context.Background(), body, validWebhookSig))

	// a later client-side verification of the same payment is a no-op
	require.NoError(t, f.service.VerifyPayment(context.Background(), "order_1", "pay_1", validCheckoutSig))

	assert.Equal(t, 1, f.provisioner.createCalls)
	assert.Len(t, f.provisioner.grantCalls, 1)
	assert.Equal(t, 1, f.notifier.jobCount())

	reg := f.store.get("reg-1")
	assert.Equal(t, "pay_1", reg.PaymentID)
	assert.Equal(t, "upi", reg.PaymentMethod)
}
