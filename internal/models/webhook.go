package models

// WebhookEvent is the gateway's payment event envelope. Fields the provider
// sends but we do not consume are omitted on purpose; unknown event names are
// acknowledged and dropped by the handler.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

// WebhookEventPaymentCaptured is the only event name that drives fulfillment
const WebhookEventPaymentCaptured = "payment.captured"

type WebhookPayload struct {
	Payment WebhookPayment `json:"payment"`
}

type WebhookPayment struct {
	Entity PaymentEntity `json:"entity"`
}

// PaymentEntity is the captured payment. Amount is in minor currency units.
type PaymentEntity struct {
	ID         string       `json:"id"`
	OrderID    string       `json:"order_id"`
	Method     string       `json:"method"`
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	CapturedAt int64        `json:"captured_at"`
	Notes      PaymentNotes `json:"notes"`
}

// PaymentNotes carries the order metadata set at order creation time
type PaymentNotes struct {
	RegistrationCorrelationID string `json:"registration_correlation_id"`
}
