package handler_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/gateway"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/payment/handler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

// fakeStore backs the webhook path with a single in-memory payment row.
type fakeStore struct {
	payment   *models.Payment
	claimed   bool
	updated   *models.Payment
	updateErr error
}

func (s *fakeStore) SavePayment(ctx context.Context, p *models.Payment) error { return nil }

func (s *fakeStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return nil, apperr.ErrNotFound
}

func (s *fakeStore) GetPaymentByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Payment, error) {
	if s.payment == nil || s.payment.MerchantOrderID != merchantOrderID {
		return nil, apperr.ErrNotFound
	}
	return s.payment, nil
}

func (s *fakeStore) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return nil, apperr.ErrNotFound
}

func (s *fakeStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = p
	return nil
}

func (s *fakeStore) MarkWebhookProcessed(ctx context.Context, paymentID string) (bool, error) {
	if s.payment == nil || s.payment.PaymentID != paymentID || s.claimed {
		return false, nil
	}
	s.claimed = true
	return true, nil
}

func (s *fakeStore) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	return nil, nil
}

func (s *fakeStore) Close() error       { return nil }
func (s *fakeStore) HealthCheck() error { return nil }

type fakeIntents struct {
	intent *models.CheckoutIntent
}

func (f *fakeIntents) GetIntent(ctx context.Context, intentID string) (*models.CheckoutIntent, error) {
	if f.intent == nil || f.intent.IntentID != intentID {
		return nil, apperr.ErrNotFound
	}
	return f.intent, nil
}

func (f *fakeIntents) SetPaymentID(ctx context.Context, intentID, paymentID string) error { return nil }

func (f *fakeIntents) TransitionStatus(ctx context.Context, intentID string, from, to models.IntentStatus) (bool, error) {
	return true, nil
}

type fakePublisher struct {
	succeeded    int
	failed       int
	alerts       int
	succeededErr error
}

func (p *fakePublisher) PublishPaymentSucceeded(ctx context.Context, topic string, event models.PaymentSucceededEvent) error {
	p.succeeded++
	return p.succeededErr
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, topic string, event models.PaymentFailedEvent) error {
	p.failed++
	return nil
}

func (p *fakePublisher) PublishAlert(ctx context.Context, topic string, event models.AlertEvent) error {
	p.alerts++
	return nil
}

func pendingRow(merchantOrderID string) *models.Payment {
	now := time.Now().UTC()
	return &models.Payment{
		PaymentID:        "pay_1",
		UserID:           "user-1",
		CheckoutIntentID: "intent-1",
		Amount:           5500,
		Currency:         "INR",
		MerchantOrderID:  merchantOrderID,
		Status:           models.PaymentPending,
		CreatedAt:        now,
	}
}

func pendingIntentRow() *models.CheckoutIntent {
	now := time.Now().UTC()
	return &models.CheckoutIntent{
		IntentID:    "intent-1",
		UserID:      "user-1",
		Status:      models.IntentPending,
		TotalAmount: 5500,
		ExpiresAt:   now.Add(24 * time.Hour),
		CreatedAt:   now,
	}
}

func newWebhookHandler(store *fakeStore, intents *fakeIntents, gw gateway.PaymentGateway, pub *fakePublisher) *handler.Handler {
	log := logger.NewLogger()
	svc := payment.NewPaymentService(store, intents, nil, gw, pub, config.TopicConfig{
		PaymentSuccess: "payment.success",
		PaymentFailed:  "payment.failed",
		AlertSend:      "alert.send",
	}, config.GatewayConfig{}, log)
	return handler.NewHandler(svc, log)
}

func postWebhook(h *handler.Handler, body []byte, headers http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)
	return rec
}

const stripeSecret = "whsec_handler_test"

func signedStripeBody(t *testing.T, merchantOrderID string, amountPaise int64) ([]byte, http.Header) {
	t.Helper()
	body := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":%d,"metadata":{"merchant_order_id":"%s"}}}}`,
		amountPaise, merchantOrderID))

	now := time.Now()
	sig := webhook.ComputeSignature(now, body, stripeSecret)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return body, headers
}

func phonePeGateway() *gateway.PhonePe {
	return gateway.NewPhonePe(config.GatewayConfig{
		WebhookUsername: "hookuser",
		WebhookPassword: "hookpass",
	}, logger.NewLogger())
}

func phonePeBody(t *testing.T, merchantOrderID string, amountPaise int64) ([]byte, http.Header) {
	t.Helper()
	inner, err := json.Marshal(map[string]interface{}{
		"success": true,
		"code":    "PAYMENT_SUCCESS",
		"data": map[string]interface{}{
			"merchantTransactionId": merchantOrderID,
			"transactionId":         "T1",
			"amount":                amountPaise,
			"paymentInstrument":     map[string]string{"type": "UPI"},
		},
	})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{
		"response": base64.StdEncoding.EncodeToString(inner),
	})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hookuser:hookpass"))
	headers := http.Header{}
	headers.Set("Authorization", hex.EncodeToString(sum[:]))
	return body, headers
}

func TestWebhookStripeSignaturePath(t *testing.T) {
	store := &fakeStore{payment: pendingRow("MT1")}
	intents := &fakeIntents{intent: pendingIntentRow()}
	pub := &fakePublisher{}
	h := newWebhookHandler(store, intents, gateway.NewStripe("sk_test_123", stripeSecret, logger.NewLogger()), pub)

	body, headers := signedStripeBody(t, "MT1", 550000)
	rec := postWebhook(h, body, headers)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.updated)
	assert.Equal(t, models.PaymentSuccess, store.updated.Status)
	assert.Equal(t, "pi_1", store.updated.GatewayTransactionID)
	assert.Equal(t, 1, pub.succeeded)
}

func TestWebhookAcksWhenPublishFails(t *testing.T) {
	store := &fakeStore{payment: pendingRow("MT1")}
	intents := &fakeIntents{intent: pendingIntentRow()}
	pub := &fakePublisher{succeededErr: errors.New("broker unreachable")}
	h := newWebhookHandler(store, intents, phonePeGateway(), pub)

	body, headers := phonePeBody(t, "MT1", 550000)
	rec := postWebhook(h, body, headers)

	// The delivery authenticated and the charge settled; a retry of the same
	// payload changes nothing, so the gateway gets its 200 and recovery runs
	// through the status poll.
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.updated)
	assert.Equal(t, models.PaymentSuccess, store.updated.Status)
}

func TestWebhookDuplicateAcked(t *testing.T) {
	row := pendingRow("MT1")
	row.WebhookProcessed = true
	store := &fakeStore{payment: row, claimed: true}
	pub := &fakePublisher{}
	h := newWebhookHandler(store, &fakeIntents{}, phonePeGateway(), pub)

	body, headers := phonePeBody(t, "MT1", 550000)
	rec := postWebhook(h, body, headers)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, pub.succeeded)
}

func TestWebhookBadAuthFailsClosed(t *testing.T) {
	store := &fakeStore{payment: pendingRow("MT1")}
	pub := &fakePublisher{}
	h := newWebhookHandler(store, &fakeIntents{}, phonePeGateway(), pub)

	body, _ := phonePeBody(t, "MT1", 550000)
	headers := http.Header{}
	headers.Set("Authorization", "not-the-right-hash")
	rec := postWebhook(h, body, headers)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, store.updated)
}
