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

// refundRepository implements RefundRepository using PostgreSQL.
type refundRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRefundRepository creates a new PostgreSQL-backed refund repository.
func NewRefundRepository(pool *pgxpool.Pool, logger zerolog.Logger) RefundRepository {
	return &refundRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "refund").Logger(),
	}
}

// Create stores a new refund request. An order has at most one unresolved
// request; a second one is reported as ErrAlreadyRequested. Resolved requests
// are kept, so an order may be asked about again after a rejection.
func (r *refundRepository) Create(ctx context.Context, tx pgx.Tx, req *model.RefundRequest) error {
	query := `
		INSERT INTO refund_requests (id, order_id, requester_id, reason, previous_status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	_, err := tx.Exec(ctx, query, req.ID, req.OrderID, req.RequesterID, req.Reason, req.PreviousStatus, req.RequestedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_refund_requests_open") {
			return model.ErrAlreadyRequested
		}
		r.logger.Error().Err(err).Str("order_id", req.OrderID.String()).Msg("failed to create refund request")
		return fmt.Errorf("failed to create refund request: %w", err)
	}

	return nil
}

// GetForUpdate loads the unresolved refund request of an order and locks it.
func (r *refundRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*model.RefundRequest, error) {
	query := `
		SELECT id, order_id, requester_id, reason, previous_status, requested_at, resolved_at, approved, resolved_by
		FROM refund_requests
		WHERE order_id = $1 AND resolved_at IS NULL
		FOR UPDATE
	`

	var req model.RefundRequest
	err := tx.QueryRow(ctx, query, orderID).Scan(
		&req.ID,
		&req.OrderID,
		&req.RequesterID,
		&req.Reason,
		&req.PreviousStatus,
		&req.RequestedAt,
		&req.ResolvedAt,
		&req.Approved,
		&req.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to query refund request")
		return nil, fmt.Errorf("failed to query refund request: %w", err)
	}

	return &req, nil
}

// Resolve marks the unresolved refund request of an order approved or rejected.
func (r *refundRepository) Resolve(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, approved bool, actorID string) error {
	query := `
		UPDATE refund_requests
		SET approved = $2, resolved_by = $3, resolved_at = NOW()
		WHERE order_id = $1 AND resolved_at IS NULL
	`

	tag, err := tx.Exec(ctx, query, orderID, approved, actorID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to resolve refund request")
		return fmt.Errorf("failed to resolve refund request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrNotEligible
	}

	return nil
}
