package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/repository"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// refundService implements RefundService.
type refundService struct {
	orderRepo  repository.OrderRepository
	refundRepo repository.RefundRepository
	ledger     StockLedger
	lifecycle  *lifecycle
	policy     *bluemonday.Policy
	events     events.Publisher
	logger     zerolog.Logger
}

// NewRefundService creates a new refund service.
func NewRefundService(
	orderRepo repository.OrderRepository,
	refundRepo repository.RefundRepository,
	ledger StockLedger,
	publisher events.Publisher,
	logger zerolog.Logger,
) RefundService {
	logger = logger.With().Str("service", "refund").Logger()
	return &refundService{
		orderRepo:  orderRepo,
		refundRepo: refundRepo,
		ledger:     ledger,
		lifecycle:  &lifecycle{orderRepo: orderRepo, ledger: ledger, logger: logger},
		policy:     bluemonday.StrictPolicy(),
		events:     publisher,
		logger:     logger,
	}
}

// RequestRefund moves a PAID or PROCESSING order to REFUND_REQUESTED. Stock is
// not returned until the request is approved.
func (s *refundService) RequestRefund(ctx context.Context, orderID uuid.UUID, requesterID, reason string) (*model.OrderSummary, error) {
	reason, err := s.sanitiseReason(reason)
	if err != nil {
		return nil, err
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to request refund: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to request refund: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.UserID != requesterID {
		s.logger.Warn().
			Str("order_id", orderID.String()).
			Str("requester_id", requesterID).
			Msg("refund requested by non-owner")
		return nil, model.ErrNotEligible
	}

	switch {
	case order.Status == model.StatusRefundRequested || order.Status == model.StatusRefunded:
		return nil, model.ErrAlreadyRequested
	case !model.RefundEligible(order.Status):
		return nil, model.ErrNotEligible
	}

	previous := order.Status
	t, err := s.lifecycle.advance(ctx, tx, order, model.StatusRefundRequested, requesterID, "")
	if err != nil {
		return nil, err
	}

	err = s.refundRepo.Create(ctx, tx, &model.RefundRequest{
		ID:             uuid.New(),
		OrderID:        order.ID,
		RequesterID:    requesterID,
		Reason:         reason,
		PreviousStatus: previous,
		RequestedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	err = s.ledger.RecordIntent(ctx, tx, order.StockItems(), model.StockChange{
		Type:    model.ChangeRefund,
		OrderID: &order.ID,
		Reason:  reason,
		ActorID: requesterID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to request refund: %w", err)
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("previous_status", string(previous)).
		Msg("refund requested")

	s.events.Publish(ctx, statusChangedEvent(order, t, requesterID))
	s.events.Publish(ctx, events.New(events.RefundRequested, order.ID.String(), events.RefundPayload{
		OrderID: order.ID.String(),
		ActorID: requesterID,
		Reason:  reason,
	}))

	return order.Summary(), nil
}

// ResolveRefund approves or rejects a pending refund. Approval returns stock,
// rejection restores the status the order had before the request.
func (s *refundService) ResolveRefund(ctx context.Context, orderID uuid.UUID, approve bool, actorID string) (*model.Order, error) {
	ctx, outbox := events.WithOutbox(ctx)
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to resolve refund: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve refund: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.StatusRefundRequested {
		target := model.StatusRefunded
		if !approve {
			target = model.StatusPaid
		}
		return nil, model.NewInvalidTransitionError(order.Status, target)
	}

	req, err := s.refundRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve refund: %w", err)
	}
	if req == nil {
		s.logger.Error().Str("order_id", orderID.String()).Msg("refund requested order has no refund request")
		return nil, model.ErrNotEligible
	}

	var t *transition
	if approve {
		t, err = s.lifecycle.advance(ctx, tx, order, model.StatusRefunded, actorID, "")
	} else {
		t, err = s.lifecycle.revertRefund(ctx, tx, order, req.PreviousStatus)
	}
	if err != nil {
		return nil, err
	}

	if err := s.refundRepo.Resolve(ctx, tx, orderID, approve, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to resolve refund: %w", err)
	}
	outbox.Flush(ctx, s.events)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Bool("approved", approve).
		Str("status", string(order.Status)).
		Bool("compensated", t.Compensated).
		Msg("refund resolved")

	s.events.Publish(ctx, statusChangedEvent(order, t, actorID))
	s.events.Publish(ctx, events.New(events.RefundResolved, order.ID.String(), events.RefundPayload{
		OrderID:  order.ID.String(),
		ActorID:  actorID,
		Approved: &approve,
	}))

	return order, nil
}

func (s *refundService) sanitiseReason(reason string) (string, error) {
	reason = strings.TrimSpace(s.policy.Sanitize(reason))
	if reason == "" {
		return "", model.ErrInvalidReason
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return "", model.NewValidationError(model.ErrCodeInvalidReason, "reason must be at most %d characters", maxReasonLength)
	}
	return reason, nil
}
