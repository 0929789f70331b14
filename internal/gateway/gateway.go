package gateway

import (
	"context"
	"net/http"
)

// Status is the gateway-neutral outcome of a payment attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// InitiateResult is what a gateway returns when a payment is started.
type InitiateResult struct {
	MerchantOrderID string `json:"merchant_order_id"`
	RedirectURL     string `json:"redirect_url"`
	Status          Status `json:"status"`
}

// WebhookResult is the normalized form of a gateway callback. Amount is in
// major units; adapters convert from whatever the gateway sends.
type WebhookResult struct {
	MerchantOrderID string `json:"merchant_order_id"`
	TransactionID   string `json:"transaction_id"`
	Status          Status `json:"status"`
	Amount          int64  `json:"amount"`
	PaymentMethod   string `json:"payment_method"`
}

// PaymentGateway abstracts the external payment provider. Amounts cross this
// boundary in major units; unit conversion is each adapter's business.
//
// HandleWebhook gets the full request headers because each provider
// authenticates deliveries through a different one: PhonePe sends a
// credential hash in Authorization, Stripe signs the payload into
// Stripe-Signature.
type PaymentGateway interface {
	Initiate(ctx context.Context, amount int64, merchantOrderID, callbackURL string) (*InitiateResult, error)
	Verify(ctx context.Context, merchantOrderID string) (Status, error)
	HandleWebhook(body []byte, headers http.Header) (*WebhookResult, error)
}

// WebhookError carries both a client-safe message and the detailed internal
// one, so handlers can respond without leaking gateway internals.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}
