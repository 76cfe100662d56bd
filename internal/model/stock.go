package model

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a stock movement recorded in the audit trail.
type ChangeType string

const (
	ChangeSale       ChangeType = "SALE"
	ChangeRestock    ChangeType = "RESTOCK"
	ChangeAdjustment ChangeType = "ADJUSTMENT"
	ChangeDamage     ChangeType = "DAMAGE"
	ChangeRefund     ChangeType = "REFUND"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeSale, ChangeRestock, ChangeAdjustment, ChangeDamage, ChangeRefund:
		return true
	}
	return false
}

// AdminAdjustable reports whether t may be used for a manual stock adjustment.
func (t ChangeType) AdminAdjustable() bool {
	return t == ChangeAdjustment || t == ChangeRestock || t == ChangeDamage
}

// StockHistory is an immutable audit record of a single stock change.
type StockHistory struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Seq           int64      `json:"seq" db:"seq"`
	ProductID     string     `json:"productId" db:"product_id"`
	VariantID     *string    `json:"variantId,omitempty" db:"variant_id"`
	OrderID       *uuid.UUID `json:"orderId,omitempty" db:"order_id"`
	ChangeType    ChangeType `json:"changeType" db:"change_type"`
	QuantityDelta int        `json:"quantityDelta" db:"quantity_delta"`
	PreviousStock int        `json:"previousStock" db:"previous_stock"`
	NewStock      int        `json:"newStock" db:"new_stock"`
	Reason        string     `json:"reason" db:"reason"`
	ActorID       string     `json:"actorId" db:"actor_id"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// StockItem identifies a quantity of a product or variant.
type StockItem struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
}

// Key returns a stable identifier for the stock counter the item draws from.
func (i StockItem) Key() string {
	if i.VariantID == nil {
		return i.ProductID
	}
	return i.ProductID + "/" + *i.VariantID
}

// StockChange describes a single ledger mutation.
// Quantity is always positive; the direction comes from the ledger operation.
type StockChange struct {
	ProductID string
	VariantID *string
	Quantity  int
	Type      ChangeType
	OrderID   *uuid.UUID
	Reason    string
	ActorID   string
}

// StockAdjustmentRequest is the payload for a manual stock adjustment.
type StockAdjustmentRequest struct {
	ProductID string     `json:"productId"`
	VariantID *string    `json:"variantId,omitempty"`
	Delta     int        `json:"delta"`
	Type      ChangeType `json:"type"`
	Reason    string     `json:"reason"`
	ActorID   string     `json:"-"`
}

// StockAudit is the result of replaying the audit trail of one stock counter.
type StockAudit struct {
	ProductID     string  `json:"productId"`
	VariantID     *string `json:"variantId,omitempty"`
	BaselineStock int     `json:"baselineStock"`
	CurrentStock  int     `json:"currentStock"`
	ReplayedStock int     `json:"replayedStock"`
	Entries       int     `json:"entries"`
	Consistent    bool    `json:"consistent"`
}
