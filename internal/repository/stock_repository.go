package repository

import (
	"context"
	"fmt"

	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// stockHistoryRepository implements StockHistoryRepository using PostgreSQL.
type stockHistoryRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStockHistoryRepository creates a new PostgreSQL-backed stock history repository.
func NewStockHistoryRepository(pool *pgxpool.Pool, logger zerolog.Logger) StockHistoryRepository {
	return &stockHistoryRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "stock_history").Logger(),
	}
}

// Append inserts an audit record. created_at uses clock_timestamp so that records
// written after a row lock is acquired sort after those written before it.
func (r *stockHistoryRepository) Append(ctx context.Context, tx pgx.Tx, entry *model.StockHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO stock_history (
			id, product_id, variant_id, order_id, change_type,
			quantity_delta, previous_stock, new_stock, reason, actor_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, clock_timestamp())
		RETURNING seq, created_at
	`

	err := tx.QueryRow(ctx, query,
		entry.ID,
		entry.ProductID,
		entry.VariantID,
		entry.OrderID,
		entry.ChangeType,
		entry.QuantityDelta,
		entry.PreviousStock,
		entry.NewStock,
		entry.Reason,
		entry.ActorID,
	).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("product_id", entry.ProductID).
			Str("change_type", string(entry.ChangeType)).
			Msg("failed to append stock history")
		return fmt.Errorf("failed to append stock history: %w", err)
	}

	return nil
}

// List returns the audit trail for one stock counter ordered for replay.
func (r *stockHistoryRepository) List(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error) {
	query := `
		SELECT id, seq, product_id, variant_id, order_id, change_type,
		       quantity_delta, previous_stock, new_stock, reason, actor_id, created_at
		FROM stock_history
		WHERE product_id = $1 AND variant_id IS NOT DISTINCT FROM $2
		ORDER BY created_at, seq
	`

	rows, err := r.pool.Query(ctx, query, productID, variantID)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", productID).Msg("failed to query stock history")
		return nil, fmt.Errorf("failed to query stock history: %w", err)
	}
	defer rows.Close()

	entries := []model.StockHistory{}
	for rows.Next() {
		var h model.StockHistory
		err := rows.Scan(
			&h.ID,
			&h.Seq,
			&h.ProductID,
			&h.VariantID,
			&h.OrderID,
			&h.ChangeType,
			&h.QuantityDelta,
			&h.PreviousStock,
			&h.NewStock,
			&h.Reason,
			&h.ActorID,
			&h.CreatedAt,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan stock history row")
			return nil, fmt.Errorf("failed to scan stock history: %w", err)
		}
		entries = append(entries, h)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating stock history rows")
		return nil, fmt.Errorf("error iterating stock history: %w", err)
	}

	return entries, nil
}
