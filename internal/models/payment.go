package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentInitiated  PaymentStatus = "initiated"
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccess    PaymentStatus = "success"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Payment tracks one attempt to pay for a checkout intent. MerchantOrderID is
// the idempotency key shared with the gateway; WebhookProcessed guards
// against re-applying a duplicate webhook delivery.
type Payment struct {
	PaymentID            string        `json:"payment_id"`
	UserID               string        `json:"user_id"`
	CheckoutIntentID     string        `json:"checkout_intent_id,omitempty"`
	Amount               int64         `json:"amount"`
	Currency             string        `json:"currency"`
	MerchantOrderID      string        `json:"merchant_order_id"`
	Status               PaymentStatus `json:"status"`
	GatewayTransactionID string        `json:"gateway_transaction_id,omitempty"`
	PaymentMethod        string        `json:"payment_method,omitempty"`
	WebhookProcessed     bool          `json:"webhook_processed"`
	PaidAt               time.Time     `json:"paid_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at,omitempty"`
}

// PaymentSucceededEvent is published exactly once per payment on the
// payment.success topic and is the only trigger for intent fulfillment.
type PaymentSucceededEvent struct {
	PaymentID        string    `json:"payment_id"`
	CheckoutIntentID string    `json:"checkout_intent_id"`
	UserID           string    `json:"user_id"`
	Amount           int64     `json:"amount"`
	PaidAt           time.Time `json:"paid_at"`
}

// PaymentFailedEvent mirrors PaymentSucceededEvent for the failure topic.
type PaymentFailedEvent struct {
	PaymentID        string `json:"payment_id"`
	CheckoutIntentID string `json:"checkout_intent_id,omitempty"`
	UserID           string `json:"user_id"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason,omitempty"`
}

// InitiatePaymentResponse is returned to the client after payment initiation.
type InitiatePaymentResponse struct {
	PaymentID       string `json:"payment_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	RedirectURL     string `json:"redirect_url"`
	Status          string `json:"status"`
}
