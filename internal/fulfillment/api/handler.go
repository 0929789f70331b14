package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/fulfillment"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	FulfillmentService *fulfillment.Service
	Logger             *logger.Logger
}

func NewHandler(svc *fulfillment.Service, log *logger.Logger) *Handler {
	return &Handler{FulfillmentService: svc, Logger: log}
}

// GetUserOrders lists the caller's orders. The path userId must match the
// authenticated subject; anything else looks like an empty list, not a leak.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	pathUserID := chi.URLParam(r, "userId")
	authUserID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("GetUserOrders: userId=%s", pathUserID))

	if pathUserID != authUserID {
		h.Logger.LogSecurity("OWNERSHIP", fmt.Sprintf("User %s requested orders of %s", authUserID, pathUserID))
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", "no orders for this user"))
		return
	}

	orders, err := h.FulfillmentService.OrdersForUser(r.Context(), pathUserID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetUserOrders: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", orders))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
