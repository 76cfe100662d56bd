package model

import (
	"fmt"
	"strings"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodeInvalidPayment       = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidShipping      = "INVALID_SHIPPING"
	ErrCodeInvalidAdjustment    = "INVALID_ADJUSTMENT"
	ErrCodeInvalidReason        = "INVALID_REASON"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeVariantRequired      = "VARIANT_REQUIRED"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodeInsufficientStock    = "INSUFFICIENT_STOCK"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeAlreadyRequested     = "ALREADY_REQUESTED"
	ErrCodeNotEligible          = "NOT_ELIGIBLE"
	ErrCodeProviderValidation   = "PROVIDER_VALIDATION_FAILED"
	ErrCodePaidOutOfStock       = "PAID_OUT_OF_STOCK"
	ErrCodeUnauthorised         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodePaymentMethodNotCOD  = "NOT_CASH_ON_DELIVERY"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeSessionOwnerMismatch = "SESSION_OWNER_MISMATCH"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so errors built with
// extra detail still satisfy errors.Is against the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidQuantity     = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrInvalidPayment      = NewDomainError(ErrCodeInvalidPayment, "Payment method is not supported")
	ErrInvalidAdjustment   = NewDomainError(ErrCodeInvalidAdjustment, "Stock adjustment is not valid")
	ErrInvalidReason       = NewDomainError(ErrCodeInvalidReason, "A reason is required")
	ErrInvalidStatus       = NewDomainError(ErrCodeInvalidStatus, "Unknown order status")
	ErrProductNotFound     = NewDomainError(ErrCodeProductNotFound, "One or more products not found")
	ErrVariantRequired     = NewDomainError(ErrCodeVariantRequired, "A variant must be selected for this product")
	ErrOrderNotFound       = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrSessionNotFound     = NewDomainError(ErrCodeSessionNotFound, "Checkout session not found")
	ErrSessionExpired      = NewDomainError(ErrCodeSessionExpired, "Checkout session has expired")
	ErrInsufficientStock   = NewDomainError(ErrCodeInsufficientStock, "Not enough stock available")
	ErrInvalidTransition   = NewDomainError(ErrCodeInvalidTransition, "Order status transition is not allowed")
	ErrAlreadyRequested    = NewDomainError(ErrCodeAlreadyRequested, "A refund has already been requested for this order")
	ErrNotEligible         = NewDomainError(ErrCodeNotEligible, "Order is not eligible for a refund")
	ErrProviderValidation  = NewDomainError(ErrCodeProviderValidation, "Payment notification failed validation")
	ErrPaidOutOfStock      = NewDomainError(ErrCodePaidOutOfStock, "Payment settled but stock is no longer available")
	ErrNotCashOnDelivery   = NewDomainError(ErrCodePaymentMethodNotCOD, "Checkout session is not cash on delivery")
	ErrProviderUnavailable = NewDomainError(ErrCodeProviderUnavailable, "Payment provider is unavailable")
	ErrSessionOwner        = NewDomainError(ErrCodeSessionOwnerMismatch, "Checkout session belongs to another user")
)

// NewInvalidTransitionError builds an InvalidTransition error naming both states.
func NewInvalidTransitionError(from, to OrderStatus) *DomainError {
	return NewDomainError(ErrCodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to))
}

// NewValidationError builds a field-level validation error for the given code.
func NewValidationError(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// StockShortage describes a single line that cannot be satisfied.
type StockShortage struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	Requested int     `json:"requested"`
	Available int     `json:"available"`
}

// InsufficientStockError carries item-level detail for every short line.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Items))
	for i, item := range e.Items {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", item.Name, item.Requested, item.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// Is lets errors.Is match the ErrInsufficientStock sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
