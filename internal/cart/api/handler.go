package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/apperr"
	"ms-booking/internal/auth"
	"ms-booking/internal/cart"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	CartService *cart.CartService
	Logger      *logger.Logger
}

func NewHandler(cartService *cart.CartService, log *logger.Logger) *Handler {
	return &Handler{CartService: cartService, Logger: log}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, apperr.ErrCapacityExceeded):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("No capacity for the selected date", err.Error()))
	case errors.Is(err, apperr.ErrConflictNeedsConfirmation):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("This event is already in your cart", err.Error()))
	case errors.Is(err, apperr.ErrEmptySelection):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("No items selected", err.Error()))
	case errors.Is(err, apperr.ErrIncompleteDraft):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Draft is missing required selections", err.Error()))
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
	}
}

// GetDraft returns the caller's draft cart.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("GetDraft: userId=%s", userID))

	draft, err := h.CartService.GetDraft(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetDraft: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Draft retrieved", draft))
}

func (h *Handler) SetDraftEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		EventID  string               `json:"event_id"`
		Category models.EventCategory `json:"event_category"`
		TierID   string               `json:"tier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetDraftEvent: failed to decode body: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SetDraftEvent: userId=%s event=%s tier=%s", userID, req.EventID, req.TierID))

	draft, err := h.CartService.SetDraftEvent(r.Context(), userID, req.Category, req.EventID, req.TierID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetDraftEvent: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Draft updated", draft))
}

func (h *Handler) SetDraftAddress(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Address models.AddressSnapshot `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SetDraftAddress: userId=%s address=%s", userID, req.Address.AddressID))

	draft, err := h.CartService.SetDraftAddress(r.Context(), userID, req.Address)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetDraftAddress: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Draft updated", draft))
}

func (h *Handler) SetDraftSchedule(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		EventDate string `json:"event_date"`
		EventTime string `json:"event_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SetDraftSchedule: userId=%s date=%s time=%s", userID, req.EventDate, req.EventTime))

	draft, err := h.CartService.SetDraftSchedule(r.Context(), userID, req.EventDate, req.EventTime)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetDraftSchedule: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Draft updated", draft))
}

func (h *Handler) AddDraftAddon(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		AddonID string `json:"addon_id"`
		TierID  string `json:"tier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("AddDraftAddon: userId=%s addon=%s tier=%s", userID, req.AddonID, req.TierID))

	draft, err := h.CartService.AddDraftAddon(r.Context(), userID, req.AddonID, req.TierID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddDraftAddon: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Addon added", draft))
}

func (h *Handler) RemoveDraftAddon(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	addonID := chi.URLParam(r, "addonId")
	h.Logger.Info("API", fmt.Sprintf("RemoveDraftAddon: userId=%s addon=%s", userID, addonID))

	draft, err := h.CartService.RemoveDraftAddon(r.Context(), userID, addonID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RemoveDraftAddon: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Addon removed", draft))
}

// PromoteDraft moves the draft into the cart as a priced item. Pass
// ?force=true to overwrite an existing item for the same event.
func (h *Handler) PromoteDraft(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	force := r.URL.Query().Get("force") == "true"
	h.Logger.Info("API", fmt.Sprintf("PromoteDraft: userId=%s force=%v", userID, force))

	item, err := h.CartService.PromoteDraft(r.Context(), userID, force)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PromoteDraft: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Added to cart", item))
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("GetCart: userId=%s", userID))

	cart, items, err := h.CartService.GetCartWithItems(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetCart: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Cart retrieved", map[string]interface{}{
		"cart":  cart,
		"items": items,
	}))
}

func (h *Handler) SelectForCheckout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SelectForCheckout: userId=%s items=%d", userID, len(req.ItemIDs)))

	if err := h.CartService.SelectForCheckout(r.Context(), userID, req.ItemIDs); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SelectForCheckout: %v", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Items selected for checkout", nil))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	itemID := chi.URLParam(r, "itemId")
	h.Logger.Info("API", fmt.Sprintf("RemoveItem: userId=%s item=%s", userID, itemID))

	if err := h.CartService.RemoveItem(r.Context(), userID, itemID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("RemoveItem: %v", err))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
