package repository

import (
	"context"

	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProductRepository defines the interface for product and stock counter access.
type ProductRepository interface {
	// GetByID retrieves a product with its variants. Returns nil if it does not exist.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products with their variants.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// LockStock reads the stock counter of a product or variant and holds a row lock
	// on it until tx ends. Returns ErrVariantRequired when variantID is nil and the
	// product is sold through variants.
	LockStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string) (int, error)

	// SetStock writes a new stock value for a product or variant within tx.
	SetStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string, stock int) error

	// GetStock reads the current stock of a product or variant without locking.
	GetStock(ctx context.Context, productID string, variantID *string) (int, error)
}

// StockHistoryRepository defines access to the append-only stock audit trail.
type StockHistoryRepository interface {
	// Append inserts an audit record within tx and fills in its sequence and timestamp.
	Append(ctx context.Context, tx pgx.Tx, entry *model.StockHistory) error

	// List returns every record for a product or variant in replay order.
	List(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// LockCorrelation serialises work on one correlation id until tx ends.
	LockCorrelation(ctx context.Context, tx pgx.Tx, correlationID string) error

	// CreateOrder inserts a new order within the provided transaction.
	// Returns ErrDuplicateCorrelationID if an order already exists for the correlation id.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// SaveShipping stores the shipping sub-record of an order.
	SaveShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, shipping *model.ShippingDetails) error

	// UpsertPayment inserts or replaces the payment sub-record of an order.
	UpsertPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, payment *model.PaymentDetails) error

	// GetByID retrieves an order with its items and sub-records. Returns nil if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByCorrelationID retrieves an order by provider correlation id. Returns nil if not found.
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.Order, error)

	// LockByID loads an order and holds a row lock on it until tx ends.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// LockByCorrelationID loads an order by correlation id and locks it until tx ends.
	LockByCorrelationID(ctx context.Context, tx pgx.Tx, correlationID string) (*model.Order, error)

	// UpdateStatus writes the status and stock flag of an order within tx.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus, stockCommitted bool) error

	// RecordCompensation claims the compensation key for an order transition.
	// It returns false if the compensation was already applied.
	RecordCompensation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, transition string) (bool, error)
}

// RefundRepository defines access to refund requests.
type RefundRepository interface {
	// Create stores a new refund request within tx.
	Create(ctx context.Context, tx pgx.Tx, req *model.RefundRequest) error

	// GetForUpdate loads the unresolved refund request of an order and locks it.
	// Returns nil if none is open.
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*model.RefundRequest, error)

	// Resolve marks the unresolved refund request of an order approved or rejected.
	Resolve(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, approved bool, actorID string) error
}
