package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"stockguard/internal/middleware"
	"stockguard/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeFailure writes a request-level error that never reached a service.
func writeFailure(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Warn().Str("error", code).Int("status", status).Msg(message)
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// writeError maps a service error to a status code and error body.
func writeError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("handler error")
	} else {
		logger.Warn().Err(err).Int("status", status).Str("code", body.Error).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, model.ErrorResponse) {
	var shortage *model.InsufficientStockError
	if errors.As(err, &shortage) {
		return http.StatusConflict, model.ErrorResponse{
			Error:   model.ErrCodeInsufficientStock,
			Message: model.ErrInsufficientStock.Message,
			Details: shortage.Items,
		}
	}

	var domainErr *model.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, model.ErrorResponse{
			Error:   model.ErrCodeInternalError,
			Message: "internal server error",
		}
	}

	body := model.ErrorResponse{Error: domainErr.Code, Message: domainErr.Message}
	switch domainErr.Code {
	case model.ErrCodeInsufficientStock, model.ErrCodeInvalidTransition,
		model.ErrCodeAlreadyRequested, model.ErrCodePaidOutOfStock:
		return http.StatusConflict, body
	case model.ErrCodeNotEligible, model.ErrCodeSessionOwnerMismatch, model.ErrCodeForbidden:
		return http.StatusForbidden, body
	case model.ErrCodeOrderNotFound, model.ErrCodeProductNotFound, model.ErrCodeSessionNotFound:
		return http.StatusNotFound, body
	case model.ErrCodeSessionExpired:
		return http.StatusGone, body
	case model.ErrCodeProviderUnavailable:
		return http.StatusBadGateway, body
	case model.ErrCodeUnauthorised:
		return http.StatusUnauthorized, body
	case model.ErrCodeInternalError:
		return http.StatusInternalServerError, body
	default:
		return http.StatusBadRequest, body
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// orderIDParam parses the {id} path parameter.
func orderIDParam(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid order ID format", logger)
		return uuid.Nil, false
	}
	return id, true
}

// variantParam returns the optional ?variantId= query parameter.
func variantParam(r *http.Request) *string {
	v := r.URL.Query().Get("variantId")
	if v == "" {
		return nil
	}
	return &v
}

// actorID identifies the caller for audit records. Admin callers may name
// themselves with the user header.
func actorID(r *http.Request, fallback string) string {
	if id := middleware.UserID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(middleware.UserIDHeader); id != "" {
		return id
	}
	return fallback
}
