package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable product and its own stock counter.
// The product counter is only used for sale when the product has no variants.
type Product struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	Variants  []Variant       `json:"variants,omitempty"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// Variant represents a purchasable variation of a product with its own stock counter.
type Variant struct {
	ID        string              `json:"id" db:"id"`
	ProductID string              `json:"productId" db:"product_id"`
	Name      string              `json:"name" db:"name"`
	Price     decimal.NullDecimal `json:"price" db:"price"`
	Stock     int                 `json:"stock" db:"stock"`
}

// HasVariants reports whether the product is sold through its variants.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant returns the variant with the given ID, or nil if the product has none.
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// UnitPrice returns the effective price for the product or one of its variants.
func (p *Product) UnitPrice(v *Variant) decimal.Decimal {
	if v != nil && v.Price.Valid {
		return v.Price.Decimal
	}
	return p.Price
}

// DisplayName returns the product name qualified with the variant name when present.
func (p *Product) DisplayName(v *Variant) string {
	if v == nil || v.Name == "" {
		return p.Name
	}
	return p.Name + " (" + v.Name + ")"
}

// AvailableStock returns the stock that can be sold for the product.
// For variant-bearing products it is the sum over the variants.
func (p *Product) AvailableStock() int {
	if !p.HasVariants() {
		return p.Stock
	}
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// Availability is the advisory stock view returned to the storefront.
type Availability struct {
	ProductID string                `json:"productId"`
	Name      string                `json:"name"`
	Available int                   `json:"available"`
	Variants  []VariantAvailability `json:"variants,omitempty"`
}

// VariantAvailability is the advisory stock of a single variant.
type VariantAvailability struct {
	VariantID string `json:"variantId"`
	Name      string `json:"name"`
	Available int    `json:"available"`
}
