package handler

import (
	"net/http"

	"stockguard/internal/middleware"
	"stockguard/internal/model"
	"stockguard/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CheckoutHandler handles checkout staging and cash-on-delivery confirmation.
type CheckoutHandler struct {
	service service.CheckoutService
	logger  zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(service service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger.With().Str("handler", "checkout").Logger(),
	}
}

// Stage handles POST /api/checkout requests.
func (h *CheckoutHandler) Stage(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	resp, err := h.service.Stage(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ConfirmCashOnDelivery handles POST /api/checkout/{correlationId}/cod requests.
func (h *CheckoutHandler) ConfirmCashOnDelivery(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationId")

	order, err := h.service.ConfirmCashOnDelivery(r.Context(), correlationID, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, order.Summary())
}
