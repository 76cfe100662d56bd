package handler

import (
	"net/http"

	"stockguard/internal/model"
	"stockguard/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// defaultAdminActor is recorded when an admin request does not name its operator.
const defaultAdminActor = "admin"

// AdminHandler handles operator requests for orders, refunds and stock.
type AdminHandler struct {
	orders  service.OrderService
	refunds service.RefundService
	ledger  service.StockLedger
	logger  zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	orders service.OrderService,
	refunds service.RefundService,
	ledger service.StockLedger,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		orders:  orders,
		refunds: refunds,
		ledger:  ledger,
		logger:  logger.With().Str("handler", "admin").Logger(),
	}
}

// ResolveRefund handles POST /api/admin/orders/{id}/refund/resolve requests.
func (h *AdminHandler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r, h.logger)
	if !ok {
		return
	}

	var body model.RefundResolutionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	if body.Approve == nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeMissingField, "approve is required", h.logger)
		return
	}

	order, err := h.refunds.ResolveRefund(r.Context(), orderID, *body.Approve, actorID(r, defaultAdminActor))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Transition handles POST /api/admin/orders/{id}/status requests.
func (h *AdminHandler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r, h.logger)
	if !ok {
		return
	}

	var body model.StatusChangeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	order, err := h.orders.Transition(r.Context(), orderID, body.Status, actorID(r, defaultAdminActor))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Adjust handles POST /api/admin/stock/adjustments requests.
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req model.StockAdjustmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}
	req.ActorID = actorID(r, defaultAdminActor)

	entry, err := h.ledger.Adjust(r.Context(), req)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// History handles GET /api/admin/stock/{productId}/history requests.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.History(r.Context(), chi.URLParam(r, "productId"), variantParam(r))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// Audit handles GET /api/admin/stock/{productId}/audit requests.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	audit, err := h.ledger.Audit(r.Context(), chi.URLParam(r, "productId"), variantParam(r))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, audit)
}
