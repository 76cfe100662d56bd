package service

import (
	"context"

	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Actor ids recorded on changes the engine makes on its own behalf.
const (
	ActorPayment  = "system:payment"
	ActorCheckout = "system:checkout"
)

// ProductService defines read operations on the catalogue.
type ProductService interface {
	// GetByID retrieves a single product with its variants.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// Availability returns the advisory stock of a product and its variants.
	Availability(ctx context.Context, id string) (*model.Availability, error)
}

// StockLedger is the only component allowed to change stock counters.
// Every mutation appends exactly one audit record in the same transaction.
type StockLedger interface {
	// Check verifies that every item could currently be satisfied. It takes no locks.
	Check(ctx context.Context, items []model.StockItem) error

	// Decrement removes stock for a single counter within tx.
	Decrement(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error)

	// Increment adds stock for a single counter within tx.
	Increment(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error)

	// DecrementItems decrements every item within tx, locking counters in a fixed
	// order. Shortages are reported together in an InsufficientStockError.
	//
	// Success events of the tx-scoped methods are held in the events.Outbox carried
	// by ctx, if any, so callers can publish them after commit.
	DecrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error

	// IncrementItems increments every item within tx, locking counters in a fixed order.
	IncrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error

	// RecordIntent appends a zero-delta record for every item within tx.
	RecordIntent(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error

	// Adjust applies a manual adjustment in its own transaction.
	Adjust(ctx context.Context, req model.StockAdjustmentRequest) (*model.StockHistory, error)

	// History returns the audit trail of a counter in replay order.
	History(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error)

	// Audit replays the audit trail of a counter and compares it with the stored value.
	Audit(ctx context.Context, productID string, variantID *string) (*model.StockAudit, error)
}

// CheckoutService stages checkouts and confirms cash-on-delivery orders.
type CheckoutService interface {
	// Stage validates a cart, freezes its prices and stores a checkout session.
	Stage(ctx context.Context, userID string, req *model.CheckoutRequest) (*model.CheckoutResponse, error)

	// ConfirmCashOnDelivery promotes a cash-on-delivery session into a PENDING order.
	ConfirmCashOnDelivery(ctx context.Context, correlationID, userID string) (*model.Order, error)
}

// OrderService defines operations on persisted orders.
type OrderService interface {
	// Get returns an order. A non-empty requesterID restricts the read to the owner.
	Get(ctx context.Context, orderID uuid.UUID, requesterID string) (*model.Order, error)

	// Transition moves an order to a new status on behalf of an operator.
	Transition(ctx context.Context, orderID uuid.UUID, to model.OrderStatus, actorID string) (*model.Order, error)
}

// NotificationProcessor handles asynchronous payment notifications.
type NotificationProcessor interface {
	// Handle verifies and applies a raw notification body.
	Handle(ctx context.Context, raw []byte) (*model.NotificationResult, error)
}

// RefundService runs the customer refund workflow.
type RefundService interface {
	// RequestRefund moves an order to REFUND_REQUESTED on behalf of its owner.
	RequestRefund(ctx context.Context, orderID uuid.UUID, requesterID, reason string) (*model.OrderSummary, error)

	// ResolveRefund approves or rejects a pending refund request.
	ResolveRefund(ctx context.Context, orderID uuid.UUID, approve bool, actorID string) (*model.Order, error)
}
