package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/apperr"
	"ms-booking/internal/auth"
	"ms-booking/internal/checkout"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	CheckoutService *checkout.CheckoutService
	Logger          *logger.Logger
}

func NewHandler(checkoutService *checkout.CheckoutService, log *logger.Logger) *Handler {
	return &Handler{CheckoutService: checkoutService, Logger: log}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, apperr.ErrEmptySelection):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("No items selected for checkout", err.Error()))
	case errors.Is(err, apperr.ErrIncompleteDraft):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Draft is missing required selections", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
	}
}

// CreateFromCart freezes the selected cart items into a new checkout intent.
func (h *Handler) CreateFromCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		CouponCode string `json:"coupon_code"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
			return
		}
	}
	h.Logger.Info("API", fmt.Sprintf("CreateFromCart: userId=%s", userID))

	intent, err := h.CheckoutService.FromCart(r.Context(), userID, req.CouponCode)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateFromCart: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Checkout intent created", intent))
}

// CreateFromDraft freezes the draft straight into a checkout intent without
// touching the cart.
func (h *Handler) CreateFromDraft(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		CouponCode string `json:"coupon_code"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
			return
		}
	}
	h.Logger.Info("API", fmt.Sprintf("CreateFromDraft: userId=%s", userID))

	intent, err := h.CheckoutService.FromDraft(r.Context(), userID, req.CouponCode)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateFromDraft: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Checkout intent created", intent))
}

func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	intentID := chi.URLParam(r, "intentId")
	h.Logger.Info("API", fmt.Sprintf("GetIntent: userId=%s intent=%s", userID, intentID))

	intent, err := h.CheckoutService.Get(r.Context(), intentID, userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetIntent: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout intent retrieved", intent))
}
