package handler

import (
	"io"
	"net/http"

	"stockguard/internal/model"
	"stockguard/internal/service"

	"github.com/rs/zerolog"
)

// NotificationHandler receives payment provider webhooks.
type NotificationHandler struct {
	processor service.NotificationProcessor
	logger    zerolog.Logger
}

// NewNotificationHandler creates a new webhook handler.
func NewNotificationHandler(processor service.NotificationProcessor, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		processor: processor,
		logger:    logger.With().Str("handler", "notification").Logger(),
	}
}

// Handle handles POST /api/payments/notifications requests. The provider
// always receives 200; success is false only when the notification failed
// validation or could not be processed.
func (h *NotificationHandler) Handle(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read notification body")
		writeJSON(w, http.StatusOK, model.WebhookAck{Success: false})
		return
	}

	result, err := h.processor.Handle(r.Context(), raw)
	if err != nil {
		writeJSON(w, http.StatusOK, model.WebhookAck{Success: false})
		return
	}

	h.logger.Debug().
		Str("correlation_id", result.CorrelationID).
		Str("disposition", string(result.Disposition)).
		Msg("notification acknowledged")
	writeJSON(w, http.StatusOK, model.WebhookAck{Success: true})
}
