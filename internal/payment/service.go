package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/gateway"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment/storage"
	"ms-booking/internal/utils"
)

// IntentStore is the slice of intent storage reconciliation needs.
type IntentStore interface {
	GetIntent(ctx context.Context, intentID string) (*models.CheckoutIntent, error)
	SetPaymentID(ctx context.Context, intentID, paymentID string) error
	TransitionStatus(ctx context.Context, intentID string, from, to models.IntentStatus) (bool, error)
}

// Publisher is the event surface reconciliation drives.
type Publisher interface {
	PublishPaymentSucceeded(ctx context.Context, topic string, event models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, topic string, event models.PaymentFailedEvent) error
	PublishAlert(ctx context.Context, topic string, event models.AlertEvent) error
}

// Liveness is the Redis-side intent TTL key. It lapses at the payment window
// boundary, ahead of the storage sweep.
type Liveness interface {
	IntentActive(ctx context.Context, intentID string) (bool, error)
}

// PaymentService owns the payment lifecycle: initiation against the gateway
// and webhook/poll reconciliation. Each gateway result is applied at most
// once per payment; the webhook_processed flag is the claim.
type PaymentService struct {
	Store    storage.Store
	Intents  IntentStore
	Liveness Liveness
	Gateway  gateway.PaymentGateway
	Producer Publisher
	Topics   config.TopicConfig
	Config   config.GatewayConfig
	logger   *logger.Logger
}

func NewPaymentService(store storage.Store, intents IntentStore, liveness Liveness, gw gateway.PaymentGateway, producer Publisher, topics config.TopicConfig, cfg config.GatewayConfig, log *logger.Logger) *PaymentService {
	return &PaymentService{
		Store:    store,
		Intents:  intents,
		Liveness: liveness,
		Gateway:  gw,
		Producer: producer,
		Topics:   topics,
		Config:   cfg,
		logger:   log,
	}
}

// InitiatePayment starts a gateway transaction for a pending intent. A fresh
// merchant order ID is minted per attempt; retrying a failed initiation
// creates a new payment row rather than reusing the old one.
func (s *PaymentService) InitiatePayment(ctx context.Context, userID, intentID string) (*models.InitiatePaymentResponse, error) {
	intent, err := s.Intents.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		s.logger.LogSecurity("OWNERSHIP", fmt.Sprintf("User %s tried to pay for intent %s owned by another user", userID, intentID))
		return nil, apperr.ErrNotFound
	}
	if intent.Status != models.IntentPending {
		return nil, apperr.NewValidation("intent", fmt.Sprintf("cannot pay for an intent in status %s", intent.Status))
	}
	if intent.Expired(time.Now().UTC()) {
		return nil, apperr.NewValidation("intent", "checkout intent has expired")
	}

	// A success that has not yet flipped the intent must not be paid twice.
	if existing, err := s.Store.GetPaymentByIntentID(ctx, intentID); err == nil && existing.Status == models.PaymentSuccess {
		return nil, apperr.NewValidation("intent", "intent already has a successful payment")
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		PaymentID:        utils.GeneratePaymentID(),
		UserID:           userID,
		CheckoutIntentID: intentID,
		Amount:           intent.TotalAmount,
		Currency:         "INR",
		MerchantOrderID:  utils.GenerateMerchantOrderID(),
		Status:           models.PaymentInitiated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Store.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	result, err := s.Gateway.Initiate(ctx, payment.Amount, payment.MerchantOrderID, s.Config.CallbackURL)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("Gateway initiation failed for payment %s: %v", payment.PaymentID, err))
		payment.Status = models.PaymentFailed
		payment.UpdatedAt = time.Now().UTC()
		if uerr := s.Store.UpdatePayment(ctx, payment); uerr != nil {
			s.logger.Error("PAYMENT", fmt.Sprintf("Failed to record initiation failure for %s: %v", payment.PaymentID, uerr))
		}
		return nil, err
	}

	payment.Status = models.PaymentPending
	payment.UpdatedAt = time.Now().UTC()
	if err := s.Store.UpdatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment record: %w", err)
	}
	if err := s.Intents.SetPaymentID(ctx, intentID, payment.PaymentID); err != nil {
		return nil, fmt.Errorf("failed to stamp payment on intent: %w", err)
	}

	s.logger.Info("PAYMENT", fmt.Sprintf("Initiated payment %s (merchant order %s) for intent %s", payment.PaymentID, payment.MerchantOrderID, intentID))
	return &models.InitiatePaymentResponse{
		PaymentID:       payment.PaymentID,
		MerchantOrderID: payment.MerchantOrderID,
		RedirectURL:     result.RedirectURL,
		Status:          string(payment.Status),
	}, nil
}

// HandleWebhook authenticates and applies one gateway callback. The adapter
// pulls its own auth header out of headers.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, headers http.Header) error {
	result, err := s.Gateway.HandleWebhook(body, headers)
	if err != nil {
		return err
	}
	return s.ApplyGatewayResult(ctx, result)
}

// Reconcile polls the gateway for a payment's status and feeds the result
// through the same path as a webhook. Used for stuck payments whose webhook
// never arrived.
func (s *PaymentService) Reconcile(ctx context.Context, merchantOrderID string) error {
	status, err := s.Gateway.Verify(ctx, merchantOrderID)
	if err != nil {
		return err
	}
	return s.ApplyGatewayResult(ctx, &gateway.WebhookResult{
		MerchantOrderID: merchantOrderID,
		Status:          status,
	})
}

// ApplyGatewayResult is the single entry point for gateway outcomes, from
// webhooks and polls alike.
//
// Duplicate deliveries return apperr.ErrIdempotentNoop, unless they catch a
// reconciled success whose intent is still waiting on fulfillment, in which
// case payment.success is re-emitted. Unknown merchant order IDs are logged
// and discarded, never used to create payments.
func (s *PaymentService) ApplyGatewayResult(ctx context.Context, result *gateway.WebhookResult) error {
	payment, err := s.Store.GetPaymentByMerchantOrderID(ctx, result.MerchantOrderID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("PAYMENT", fmt.Sprintf("Discarding gateway result for unknown merchant order %s", result.MerchantOrderID))
			return nil
		}
		return err
	}

	if payment.WebhookProcessed {
		// One duplicate is worth acting on: a reconciled success whose
		// payment.success publish failed. Nothing else would ever retry it,
		// so while the intent is still paid and unfulfilled, re-emit.
		// Fulfillment is idempotent, extra deliveries are harmless.
		if payment.Status == models.PaymentSuccess {
			if intent, ierr := s.Intents.GetIntent(ctx, payment.CheckoutIntentID); ierr == nil && intent.Status == models.IntentPaid {
				event := models.PaymentSucceededEvent{
					PaymentID:        payment.PaymentID,
					CheckoutIntentID: payment.CheckoutIntentID,
					UserID:           payment.UserID,
					Amount:           payment.Amount,
					PaidAt:           payment.PaidAt,
				}
				if perr := s.Producer.PublishPaymentSucceeded(ctx, s.Topics.PaymentSuccess, event); perr != nil {
					s.logger.Error("KAFKA", fmt.Sprintf("Failed to republish payment.success for %s: %v", payment.PaymentID, perr))
					return perr
				}
				s.logger.Info("PAYMENT", fmt.Sprintf("Republished payment.success for %s, intent %s awaiting fulfillment", payment.PaymentID, payment.CheckoutIntentID))
				return nil
			}
		}
		s.logger.Info("PAYMENT", fmt.Sprintf("Payment %s already reconciled, ignoring duplicate", payment.PaymentID))
		return apperr.ErrIdempotentNoop
	}

	if result.Status == gateway.StatusPending {
		s.logger.Info("PAYMENT", fmt.Sprintf("Payment %s still pending at gateway, nothing to apply", payment.PaymentID))
		return nil
	}

	// Claim the processing slot before touching anything else; the loser of
	// a concurrent duplicate delivery stops here.
	claimed, err := s.Store.MarkWebhookProcessed(ctx, payment.PaymentID)
	if err != nil {
		return err
	}
	if !claimed {
		return apperr.ErrIdempotentNoop
	}

	now := time.Now().UTC()

	intent, err := s.Intents.GetIntent(ctx, payment.CheckoutIntentID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	// A success arriving after the intent expired must not produce orders.
	// The money moved, so raise an alert for manual refund handling. The
	// Redis TTL key lapses right at the window boundary, so a lapsed key
	// counts as expired even before the sweep flips the row.
	stale := intent == nil || intent.Status == models.IntentExpired || intent.Expired(now)
	if result.Status == gateway.StatusSuccess && !stale && intent.Status == models.IntentPending && s.Liveness != nil {
		if active, lerr := s.Liveness.IntentActive(ctx, intent.IntentID); lerr == nil && !active {
			s.logger.Warn("PAYMENT", fmt.Sprintf("TTL key for intent %s lapsed, treating success as stale", intent.IntentID))
			stale = true
		}
	}
	if result.Status == gateway.StatusSuccess && stale {
		payment.Status = models.PaymentCancelled
		payment.GatewayTransactionID = result.TransactionID
		payment.PaymentMethod = result.PaymentMethod
		payment.WebhookProcessed = true
		payment.UpdatedAt = now
		if err := s.Store.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		s.logger.Warn("PAYMENT", fmt.Sprintf("Payment %s succeeded after intent %s expired, cancelled", payment.PaymentID, payment.CheckoutIntentID))
		alert := models.AlertEvent{
			Severity:    "high",
			Source:      "payment-reconciliation",
			ReferenceID: payment.PaymentID,
			Message:     fmt.Sprintf("Payment %s succeeded for expired intent %s, refund required", payment.PaymentID, payment.CheckoutIntentID),
			At:          now,
		}
		if err := s.Producer.PublishAlert(ctx, s.Topics.AlertSend, alert); err != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish stale-payment alert: %v", err))
		}
		return nil
	}

	switch result.Status {
	case gateway.StatusSuccess:
		payment.Status = models.PaymentSuccess
		payment.GatewayTransactionID = result.TransactionID
		payment.PaymentMethod = result.PaymentMethod
		payment.PaidAt = now
	case gateway.StatusFailed:
		payment.Status = models.PaymentFailed
		payment.GatewayTransactionID = result.TransactionID
		payment.PaymentMethod = result.PaymentMethod
	}
	payment.WebhookProcessed = true
	payment.UpdatedAt = now

	if err := s.Store.UpdatePayment(ctx, payment); err != nil {
		return err
	}

	if result.Status == gateway.StatusSuccess {
		if moved, err := s.Intents.TransitionStatus(ctx, payment.CheckoutIntentID, models.IntentPending, models.IntentPaid); err != nil {
			return err
		} else if !moved {
			s.logger.Warn("PAYMENT", fmt.Sprintf("Intent %s was not pending when payment %s succeeded", payment.CheckoutIntentID, payment.PaymentID))
		}

		event := models.PaymentSucceededEvent{
			PaymentID:        payment.PaymentID,
			CheckoutIntentID: payment.CheckoutIntentID,
			UserID:           payment.UserID,
			Amount:           payment.Amount,
			PaidAt:           payment.PaidAt,
		}
		if err := s.Producer.PublishPaymentSucceeded(ctx, s.Topics.PaymentSuccess, event); err != nil {
			// The record is reconciled; the duplicate branch above republishes
			// on the next delivery or status poll.
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish payment.success for %s: %v", payment.PaymentID, err))
			return err
		}
		s.logger.Info("PAYMENT", fmt.Sprintf("Payment %s reconciled as success", payment.PaymentID))
		return nil
	}

	if moved, err := s.Intents.TransitionStatus(ctx, payment.CheckoutIntentID, models.IntentPending, models.IntentFailed); err != nil {
		return err
	} else if !moved {
		s.logger.Warn("PAYMENT", fmt.Sprintf("Intent %s was not pending when payment %s failed", payment.CheckoutIntentID, payment.PaymentID))
	}

	event := models.PaymentFailedEvent{
		PaymentID:        payment.PaymentID,
		CheckoutIntentID: payment.CheckoutIntentID,
		UserID:           payment.UserID,
		Amount:           payment.Amount,
		Reason:           "gateway reported failure",
	}
	if err := s.Producer.PublishPaymentFailed(ctx, s.Topics.PaymentFailed, event); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish payment.failed for %s: %v", payment.PaymentID, err))
		return err
	}
	s.logger.Info("PAYMENT", fmt.Sprintf("Payment %s reconciled as failed", payment.PaymentID))
	return nil
}

// GetPayment returns a payment to its owner.
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return payment, nil
}

// ListPayments pages through the caller's payment history, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListPayments(ctx, userID, limit, offset)
}
