package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status"
)

// PhonePe implements PaymentGateway against the PhonePe PG sandbox/prod API.
// Outbound requests are signed with the X-VERIFY checksum; inbound webhooks
// are authenticated by comparing the Authorization header against
// sha256(username:password).
type PhonePe struct {
	cfg    config.GatewayConfig
	client *http.Client
	logger *logger.Logger
}

func NewPhonePe(cfg config.GatewayConfig, log *logger.Logger) *PhonePe {
	return &PhonePe{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: log,
	}
}

type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	ExpireAfter           int64             `json:"expireAfter,omitempty"`
	PaymentInstrument     map[string]string `json:"paymentInstrument"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// checksum builds the X-VERIFY header value for a payload+path pair.
func (p *PhonePe) checksum(base64Payload, path string) string {
	sum := sha256.Sum256([]byte(base64Payload + path + p.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}

// Initiate starts a PAY_PAGE transaction. amount is in rupees; PhonePe wants
// paise and the pay-page expiry in seconds.
func (p *PhonePe) Initiate(ctx context.Context, amount int64, merchantOrderID, callbackURL string) (*InitiateResult, error) {
	payload := payRequest{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: merchantOrderID,
		Amount:                amount * 100,
		RedirectURL:           callbackURL,
		RedirectMode:          "POST",
		CallbackURL:           p.cfg.CallbackURL,
		ExpireAfter:           int64(p.cfg.ExpireAfter.Seconds()),
		PaymentInstrument:     map[string]string{"type": "PAY_PAGE"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.checksum(encoded, payPath))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Error("GATEWAY", fmt.Sprintf("PhonePe initiate returned %d: %s", resp.StatusCode, string(respBody)))
		return nil, apperr.NewGateway("phonepe initiate", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed payResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperr.NewGateway("phonepe initiate", err)
	}
	if !parsed.Success {
		p.logger.Error("GATEWAY", fmt.Sprintf("PhonePe initiate rejected: %s (%s)", parsed.Code, parsed.Message))
		return nil, apperr.NewGateway("phonepe initiate", fmt.Errorf("gateway rejected: %s", parsed.Code))
	}

	p.logger.Info("GATEWAY", fmt.Sprintf("Initiated PhonePe transaction %s (%d paise)", merchantOrderID, payload.Amount))
	return &InitiateResult{
		MerchantOrderID: merchantOrderID,
		RedirectURL:     parsed.Data.InstrumentResponse.RedirectInfo.URL,
		Status:          StatusPending,
	}, nil
}

type statusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		PaymentInstrument     struct {
			Type string `json:"type"`
		} `json:"paymentInstrument"`
	} `json:"data"`
}

// Verify polls the transaction status endpoint.
func (p *PhonePe) Verify(ctx context.Context, merchantOrderID string) (Status, error) {
	path := fmt.Sprintf("%s/%s/%s", statusPath, p.cfg.MerchantID, merchantOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return StatusPending, apperr.NewGateway("phonepe verify", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.checksum("", path))
	req.Header.Set("X-MERCHANT-ID", p.cfg.MerchantID)

	resp, err := p.client.Do(req)
	if err != nil {
		return StatusPending, apperr.NewGateway("phonepe verify", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusPending, apperr.NewGateway("phonepe verify", err)
	}

	var parsed statusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return StatusPending, apperr.NewGateway("phonepe verify", err)
	}
	return codeToStatus(parsed.Code), nil
}

func codeToStatus(code string) Status {
	switch code {
	case "PAYMENT_SUCCESS":
		return StatusSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT":
		return StatusFailed
	default:
		return StatusPending
	}
}

// webhookAuth is the expected Authorization header value.
func (p *PhonePe) webhookAuth() string {
	sum := sha256.Sum256([]byte(p.cfg.WebhookUsername + ":" + p.cfg.WebhookPassword))
	return hex.EncodeToString(sum[:])
}

type webhookEnvelope struct {
	Response string `json:"response"`
}

// HandleWebhook authenticates and decodes a PhonePe server-to-server
// callback. It fails closed: any auth or decode problem rejects the event.
func (p *PhonePe) HandleWebhook(body []byte, headers http.Header) (*WebhookResult, error) {
	if p.cfg.WebhookUsername == "" || p.cfg.WebhookPassword == "" {
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "webhook credentials are not configured",
		}
	}

	expected := p.webhookAuth()
	if subtle.ConstantTimeCompare([]byte(headers.Get("Authorization")), []byte(expected)) != 1 {
		p.logger.LogSecurity("WEBHOOK", "Rejected webhook with bad Authorization header")
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "Unauthorized",
			InternalError: "webhook authorization mismatch",
		}
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to decode webhook envelope: %v", err),
			OriginalErr:   err,
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to decode webhook response: %v", err),
			OriginalErr:   err,
		}
	}

	var parsed statusResponse
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to decode webhook body: %v", err),
			OriginalErr:   err,
		}
	}
	if parsed.Data.MerchantTransactionID == "" {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: "webhook payload has no merchantTransactionId",
		}
	}

	return &WebhookResult{
		MerchantOrderID: parsed.Data.MerchantTransactionID,
		TransactionID:   parsed.Data.TransactionID,
		Status:          codeToStatus(parsed.Code),
		Amount:          parsed.Data.Amount / 100,
		PaymentMethod:   parsed.Data.PaymentInstrument.Type,
	}, nil
}
