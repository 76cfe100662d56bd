package handler

import (
	"net/http"

	"stockguard/internal/middleware"
	"stockguard/internal/model"
	"stockguard/internal/service"

	"github.com/rs/zerolog"
)

// OrderHandler handles customer order requests.
type OrderHandler struct {
	orders  service.OrderService
	refunds service.RefundService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders service.OrderService, refunds service.RefundService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		refunds: refunds,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r, h.logger)
	if !ok {
		return
	}

	order, err := h.orders.Get(r.Context(), orderID, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// RequestRefund handles POST /api/orders/{id}/refund requests.
func (h *OrderHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r, h.logger)
	if !ok {
		return
	}

	var body model.RefundRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	summary, err := h.refunds.RequestRefund(r.Context(), orderID, middleware.UserID(r.Context()), body.Reason)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
