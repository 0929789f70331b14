package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ms-booking/internal/apperr"
	"ms-booking/internal/auth"
	"ms-booking/internal/gateway"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	PaymentService *payment.PaymentService
	Logger         *logger.Logger
}

func NewHandler(paymentService *payment.PaymentService, log *logger.Logger) *Handler {
	return &Handler{PaymentService: paymentService, Logger: log}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Initiate starts a gateway payment for a checkout intent.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	intentID := chi.URLParam(r, "intentId")
	if intentID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "intentId is required"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Initiate: userId=%s intent=%s", userID, intentID))

	resp, err := h.PaymentService.InitiatePayment(r.Context(), userID, intentID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Initiate: %v", err))
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Checkout intent not found", err.Error()))
		case apperr.IsValidation(err):
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Cannot initiate payment", err.Error()))
		default:
			var gerr *apperr.GatewayError
			if errors.As(err, &gerr) {
				writeJSON(w, http.StatusBadGateway, utils.ErrorResponse("Payment gateway unavailable", err.Error()))
				return
			}
			writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Payment initiated", resp))
}

// Webhook receives gateway callbacks. Unauthenticated: the adapter verifies
// its own auth header. Once a delivery authenticates, the answer is 200
// whatever happens inside: the gateway already settled the money, so a retry
// of the same payload cannot change the outcome here. Recovery for anything
// that failed internally is the status poll.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", "could not read body"))
		return
	}

	err = h.PaymentService.HandleWebhook(r.Context(), body, r.Header)
	if err != nil {
		if errors.Is(err, apperr.ErrIdempotentNoop) {
			writeJSON(w, http.StatusOK, utils.SuccessResponse("Already processed", nil))
			return
		}
		var werr *gateway.WebhookError
		if errors.As(err, &werr) && (werr.Category == "validation" || werr.Category == "configuration") {
			// Fail closed only when the delivery itself cannot be trusted.
			h.Logger.Error("WEBHOOK", werr.InternalError)
			writeJSON(w, werr.StatusCode, utils.ErrorResponse(werr.PublicError, ""))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing failed, acknowledging anyway: %v", err))
		writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook received", nil))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}

// Reconcile polls the gateway for a stuck payment and applies the result.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	merchantOrderID := chi.URLParam(r, "merchantOrderId")
	h.Logger.Info("API", fmt.Sprintf("Reconcile: merchantOrder=%s", merchantOrderID))

	err := h.PaymentService.Reconcile(r.Context(), merchantOrderID)
	if err != nil {
		if errors.Is(err, apperr.ErrIdempotentNoop) {
			writeJSON(w, http.StatusOK, utils.SuccessResponse("Already reconciled", nil))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Reconcile: %v", err))
		writeJSON(w, http.StatusBadGateway, utils.ErrorResponse("Reconciliation failed", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Reconciled", nil))
}

// ListPayments returns the caller's payment history.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.PaymentService.ListPayments(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPayments: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payments retrieved", payments))
}

// GetPayment returns one of the caller's payments.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.PaymentService.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Payment not found", err.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetPayment: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment retrieved", p))
}
