package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutSession is the staged checkout held outside the durable store
// until a payment notification promotes it into an order or it expires.
type CheckoutSession struct {
	CorrelationID string          `json:"correlationId"`
	UserID        string          `json:"userId"`
	Items         []SessionItem   `json:"items"`
	Shipping      ShippingDetails `json:"shipping"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// SessionItem is a cart line with its price frozen at staging time.
type SessionItem struct {
	ProductID string          `json:"productId"`
	VariantID *string         `json:"variantId,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Expired reports whether the session has passed its expiry at now.
func (s *CheckoutSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StockItems returns the session lines as ledger items.
func (s *CheckoutSession) StockItems() []StockItem {
	items := make([]StockItem, len(s.Items))
	for i, item := range s.Items {
		items[i] = StockItem{ProductID: item.ProductID, VariantID: item.VariantID, Name: item.Name, Quantity: item.Quantity}
	}
	return items
}

// CheckoutRequest is the validated cart and shipping input from the storefront.
type CheckoutRequest struct {
	Items         []CheckoutItemRequest `json:"items"`
	Shipping      ShippingDetails       `json:"shipping"`
	PaymentMethod PaymentMethod         `json:"paymentMethod"`
}

// CheckoutItemRequest is a single cart line.
type CheckoutItemRequest struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
}

// CheckoutResponse is returned once a checkout session has been staged.
type CheckoutResponse struct {
	CorrelationID string          `json:"correlationId"`
	RedirectURL   string          `json:"redirectUrl,omitempty"`
	Token         string          `json:"token,omitempty"`
	Total         decimal.Decimal `json:"total"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}
