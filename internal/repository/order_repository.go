package repository

import (
	"context"
	"errors"
	"fmt"

	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const correlationConstraint = "orders_correlation_id_key"

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// LockCorrelation takes a transaction-scoped advisory lock keyed by the correlation id.
func (r *orderRepository) LockCorrelation(ctx context.Context, tx pgx.Tx, correlationID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, correlationID); err != nil {
		r.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to acquire correlation lock")
		return fmt.Errorf("failed to acquire correlation lock: %w", err)
	}
	return nil
}

// CreateOrder inserts a new order within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, status, total, payment_method, correlation_id,
			stock_committed, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.Status,
		order.Total,
		order.PaymentMethod,
		order.CorrelationID,
		order.StockCommitted,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, correlationConstraint) {
			r.logger.Info().
				Str("correlation_id", order.CorrelationID).
				Msg("order already exists for correlation id")
			return ErrDuplicateCorrelationID
		}
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("correlation_id", order.CorrelationID).
		Msg("order created successfully")

	return nil
}

// CreateOrderItems inserts multiple order items within the provided transaction.
// Items keep the position they have in the slice.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, variant_id, name, quantity, unit_price, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.VariantID, item.Name, item.Quantity, item.UnitPrice, i)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("product_id", items[i].ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created successfully")

	return nil
}

// SaveShipping stores the shipping sub-record of an order.
func (r *orderRepository) SaveShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, s *model.ShippingDetails) error {
	query := `
		INSERT INTO shipping_details (order_id, name, email, phone, address, city, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query, orderID, s.Name, s.Email, s.Phone, s.Address, s.City, s.PostalCode)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to save shipping details")
		return fmt.Errorf("failed to save shipping details: %w", err)
	}
	return nil
}

// UpsertPayment inserts or replaces the payment sub-record of an order.
func (r *orderRepository) UpsertPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, p *model.PaymentDetails) error {
	query := `
		INSERT INTO payment_details (
			order_id, provider, transaction_id, provider_status, amount, raw_payload, provider_time, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			transaction_id = EXCLUDED.transaction_id,
			provider_status = EXCLUDED.provider_status,
			amount = EXCLUDED.amount,
			raw_payload = EXCLUDED.raw_payload,
			provider_time = EXCLUDED.provider_time,
			updated_at = EXCLUDED.updated_at
	`

	raw := p.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	_, err := tx.Exec(ctx, query, orderID, p.Provider, p.TransactionID, p.ProviderStatus, p.Amount, string(raw), p.ProviderTime)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to upsert payment details")
		return fmt.Errorf("failed to upsert payment details: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID along with its items and sub-records.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.loadOrder(ctx, r.pool, "o.id = $1", id, false)
}

// GetByCorrelationID retrieves an order by its provider correlation id.
func (r *orderRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Order, error) {
	return r.loadOrder(ctx, r.pool, "o.correlation_id = $1", correlationID, false)
}

// LockByID loads an order and locks its row until tx ends.
func (r *orderRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	return r.loadOrder(ctx, tx, "o.id = $1", id, true)
}

// LockByCorrelationID loads an order by correlation id and locks its row until tx ends.
func (r *orderRepository) LockByCorrelationID(ctx context.Context, tx pgx.Tx, correlationID string) (*model.Order, error) {
	return r.loadOrder(ctx, tx, "o.correlation_id = $1", correlationID, true)
}

// UpdateStatus writes the status and stock flag of an order.
func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus, stockCommitted bool) error {
	query := `
		UPDATE orders
		SET status = $2, stock_committed = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id, status, stockCommitted)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("status", string(status)).
			Msg("failed to update order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	r.logger.Debug().
		Str("order_id", id.String()).
		Str("status", string(status)).
		Msg("order status updated")

	return nil
}

// RecordCompensation claims the compensation key for an order transition.
func (r *orderRepository) RecordCompensation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, transition string) (bool, error) {
	query := `
		INSERT INTO stock_compensations (order_id, transition)
		VALUES ($1, $2)
		ON CONFLICT (order_id, transition) DO NOTHING
	`

	tag, err := tx.Exec(ctx, query, orderID, transition)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Str("transition", transition).
			Msg("failed to record compensation")
		return false, fmt.Errorf("failed to record compensation: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// loadOrder reads an order matching where, then its items and sub-records, through q.
func (r *orderRepository) loadOrder(ctx context.Context, q Querier, where string, arg any, forUpdate bool) (*model.Order, error) {
	orderQuery := `
		SELECT o.id, o.user_id, o.status, o.total, o.payment_method, o.correlation_id,
		       o.stock_committed, o.created_at, o.updated_at
		FROM orders o
		WHERE ` + where
	if forUpdate {
		orderQuery += " FOR UPDATE"
	}

	var order model.Order
	err := q.QueryRow(ctx, orderQuery, arg).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.Total,
		&order.PaymentMethod,
		&order.CorrelationID,
		&order.StockCommitted,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Interface("key", arg).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Interface("key", arg).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.loadItems(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	var s model.ShippingDetails
	err = q.QueryRow(ctx, `
		SELECT name, email, phone, address, city, postal_code
		FROM shipping_details
		WHERE order_id = $1
	`, order.ID).Scan(&s.Name, &s.Email, &s.Phone, &s.Address, &s.City, &s.PostalCode)
	switch {
	case err == nil:
		order.Shipping = &s
	case !errors.Is(err, pgx.ErrNoRows):
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to query shipping details")
		return nil, fmt.Errorf("failed to query shipping details: %w", err)
	}

	var p model.PaymentDetails
	var raw []byte
	err = q.QueryRow(ctx, `
		SELECT provider, transaction_id, provider_status, amount, raw_payload, provider_time, updated_at
		FROM payment_details
		WHERE order_id = $1
	`, order.ID).Scan(&p.Provider, &p.TransactionID, &p.ProviderStatus, &p.Amount, &raw, &p.ProviderTime, &p.UpdatedAt)
	switch {
	case err == nil:
		p.RawPayload = raw
		order.Payment = &p
	case !errors.Is(err, pgx.ErrNoRows):
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to query payment details")
		return nil, fmt.Errorf("failed to query payment details: %w", err)
	}

	return &order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q Querier, orderID uuid.UUID) ([]model.OrderItem, error) {
	itemsQuery := `
		SELECT id, order_id, product_id, variant_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := q.Query(ctx, itemsQuery, orderID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Name, &item.Quantity, &item.UnitPrice)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}
