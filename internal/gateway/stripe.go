package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe implements PaymentGateway on Stripe payment intents. It is the
// swap-in alternative to PhonePe; the merchant order ID travels in intent
// metadata so webhooks can be correlated.
type Stripe struct {
	webhookSecret string
	logger        *logger.Logger
}

func NewStripe(secretKey, webhookSecret string, log *logger.Logger) *Stripe {
	stripe.Key = secretKey
	return &Stripe{webhookSecret: webhookSecret, logger: log}
}

// Initiate creates a payment intent. The client secret rides in RedirectURL
// since Stripe's flow is client-confirmed rather than redirect-based.
func (s *Stripe) Initiate(ctx context.Context, amount int64, merchantOrderID, callbackURL string) (*InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount * 100),
		Currency: stripe.String("inr"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("merchant_order_id", merchantOrderID)

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, apperr.NewGateway("stripe initiate", err)
	}

	s.logger.Info("GATEWAY", fmt.Sprintf("Created Stripe payment intent %s for %s", intent.ID, merchantOrderID))
	return &InitiateResult{
		MerchantOrderID: merchantOrderID,
		RedirectURL:     intent.ClientSecret,
		Status:          StatusPending,
	}, nil
}

// Verify searches for the intent by merchant order ID and maps its status.
func (s *Stripe) Verify(ctx context.Context, merchantOrderID string) (Status, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['merchant_order_id']:'%s'", merchantOrderID),
			Context: ctx,
		},
	}
	iter := paymentintent.Search(params)
	for iter.Next() {
		return stripeStatus(iter.PaymentIntent().Status), nil
	}
	if err := iter.Err(); err != nil {
		return StatusPending, apperr.NewGateway("stripe verify", err)
	}
	return StatusPending, apperr.NewGateway("stripe verify", fmt.Errorf("no payment intent for %s", merchantOrderID))
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSuccess
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

// HandleWebhook verifies the Stripe-Signature header and normalizes the
// event.
func (s *Stripe) HandleWebhook(body []byte, headers http.Header) (*WebhookResult, error) {
	if s.webhookSecret == "" {
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(body, headers.Get("Stripe-Signature"), s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.LogSecurity("WEBHOOK", fmt.Sprintf("Stripe signature verification failed: %v", err))
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	var status Status
	switch event.Type {
	case "payment_intent.succeeded":
		status = StatusSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = StatusFailed
	default:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Ignoring Stripe event type %s", event.Type))
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusOK,
			PublicError:   "Event ignored",
			InternalError: fmt.Sprintf("unhandled event type %s", event.Type),
		}
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}

	merchantOrderID, ok := intent.Metadata["merchant_order_id"]
	if !ok {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: "payment intent has no merchant_order_id in metadata",
		}
	}

	method := ""
	if intent.PaymentMethod != nil {
		method = string(intent.PaymentMethod.Type)
	}

	return &WebhookResult{
		MerchantOrderID: merchantOrderID,
		TransactionID:   intent.ID,
		Status:          status,
		Amount:          intent.Amount / 100,
		PaymentMethod:   method,
	}, nil
}
