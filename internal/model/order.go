package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the method the customer chose at checkout.
type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentEWallet      PaymentMethod = "E_WALLET"
	PaymentCOD          PaymentMethod = "COD"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentBankTransfer, PaymentCreditCard, PaymentEWallet, PaymentCOD:
		return true
	}
	return false
}

// Order represents a persisted customer order.
type Order struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	UserID         string           `json:"userId" db:"user_id"`
	Status         OrderStatus      `json:"status" db:"status"`
	Total          decimal.Decimal  `json:"total" db:"total"`
	PaymentMethod  PaymentMethod    `json:"paymentMethod" db:"payment_method"`
	CorrelationID  string           `json:"correlationId" db:"correlation_id"`
	StockCommitted bool             `json:"-" db:"stock_committed"`
	Items          []OrderItem      `json:"items"`
	Shipping       *ShippingDetails `json:"shipping,omitempty"`
	Payment        *PaymentDetails  `json:"payment,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

// StockItems returns the order lines as ledger items.
func (o *Order) StockItems() []StockItem {
	items := make([]StockItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = StockItem{ProductID: item.ProductID, VariantID: item.VariantID, Name: item.Name, Quantity: item.Quantity}
	}
	return items
}

// OrderItem represents a line item in an order. Immutable after creation.
type OrderItem struct {
	ID        uuid.UUID       `json:"-" db:"id"`
	OrderID   uuid.UUID       `json:"-" db:"order_id"`
	ProductID string          `json:"productId" db:"product_id"`
	VariantID *string         `json:"variantId,omitempty" db:"variant_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice" db:"unit_price"`
}

// ShippingDetails holds the delivery address of an order.
type ShippingDetails struct {
	Name       string `json:"name" db:"name"`
	Email      string `json:"email" db:"email"`
	Phone      string `json:"phone" db:"phone"`
	Address    string `json:"address" db:"address"`
	City       string `json:"city" db:"city"`
	PostalCode string `json:"postalCode" db:"postal_code"`
}

// PaymentDetails is the latest provider view of an order's payment.
type PaymentDetails struct {
	Provider       string          `json:"provider" db:"provider"`
	TransactionID  string          `json:"transactionId" db:"transaction_id"`
	ProviderStatus string          `json:"providerStatus" db:"provider_status"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	RawPayload     json.RawMessage `json:"-" db:"raw_payload"`
	ProviderTime   *time.Time      `json:"providerTime,omitempty" db:"provider_time"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// RefundRequest records a customer refund request and its resolution.
type RefundRequest struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	OrderID        uuid.UUID   `json:"orderId" db:"order_id"`
	RequesterID    string      `json:"requesterId" db:"requester_id"`
	Reason         string      `json:"reason" db:"reason"`
	PreviousStatus OrderStatus `json:"previousStatus" db:"previous_status"`
	RequestedAt    time.Time   `json:"requestedAt" db:"requested_at"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty" db:"resolved_at"`
	Approved       *bool       `json:"approved,omitempty" db:"approved"`
	ResolvedBy     *string     `json:"resolvedBy,omitempty" db:"resolved_by"`
}

// RefundRequestBody is the request payload for requesting a refund.
type RefundRequestBody struct {
	Reason string `json:"reason"`
}

// RefundResolutionBody is the request payload for resolving a refund.
type RefundResolutionBody struct {
	Approve *bool `json:"approve"`
}

// StatusChangeBody is the request payload for an admin status transition.
type StatusChangeBody struct {
	Status OrderStatus `json:"status"`
}

// OrderSummary is the customer-facing view of an order.
type OrderSummary struct {
	ID            uuid.UUID       `json:"id"`
	Status        OrderStatus     `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Items         []OrderItem     `json:"items"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Summary returns the customer-facing view of the order.
func (o *Order) Summary() *OrderSummary {
	return &OrderSummary{
		ID:            o.ID,
		Status:        o.Status,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Items:         o.Items,
		UpdatedAt:     o.UpdatedAt,
	}
}
