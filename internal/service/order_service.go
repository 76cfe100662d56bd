package service

import (
	"context"
	"fmt"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	lifecycle *lifecycle
	events    events.Publisher
	logger    zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	ledger StockLedger,
	publisher events.Publisher,
	logger zerolog.Logger,
) OrderService {
	logger = logger.With().Str("service", "order").Logger()
	return &orderService{
		orderRepo: orderRepo,
		lifecycle: &lifecycle{orderRepo: orderRepo, ledger: ledger, logger: logger},
		events:    publisher,
		logger:    logger,
	}
}

// Get retrieves an order. Orders of other users are reported as not found.
func (s *orderService) Get(ctx context.Context, orderID uuid.UUID, requesterID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil {
		s.logger.Debug().Str("order_id", orderID.String()).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}

	if requesterID != "" && order.UserID != requesterID {
		s.logger.Warn().
			Str("order_id", orderID.String()).
			Str("requester_id", requesterID).
			Msg("order requested by non-owner")
		return nil, model.ErrOrderNotFound
	}

	return order, nil
}

// Transition applies an operator-driven status change. Refund states are only
// reachable through the refund workflow.
func (s *orderService) Transition(ctx context.Context, orderID uuid.UUID, to model.OrderStatus, actorID string) (*model.Order, error) {
	if !to.Valid() {
		return nil, model.ErrInvalidStatus
	}

	ctx, outbox := events.WithOutbox(ctx)
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if to == model.StatusRefundRequested || to == model.StatusRefunded {
		return nil, model.NewInvalidTransitionError(order.Status, to)
	}

	t, err := s.lifecycle.advance(ctx, tx, order, to, actorID, "")
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("order_id", orderID.String()).
			Str("from", string(order.Status)).
			Str("to", string(to)).
			Msg("order transition rejected")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	outbox.Flush(ctx, s.events)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Bool("compensated", t.Compensated).
		Str("actor_id", actorID).
		Msg("order status changed")

	s.events.Publish(ctx, statusChangedEvent(order, t, actorID))

	return order, nil
}
