package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/payment"
	"stockguard/internal/repository"
	"stockguard/internal/session"

	"github.com/rs/zerolog"
)

// NotificationConfig holds what the processor needs to verify notifications.
type NotificationConfig struct {
	ServerKey string
	Provider  string
	Location  *time.Location
}

// notificationProcessor implements NotificationProcessor.
type notificationProcessor struct {
	cfg       NotificationConfig
	orderRepo repository.OrderRepository
	sessions  session.Store
	lifecycle *lifecycle
	promotion *promotion
	events    events.Publisher
	logger    zerolog.Logger
}

// NewNotificationProcessor creates a new payment notification processor.
func NewNotificationProcessor(
	cfg NotificationConfig,
	orderRepo repository.OrderRepository,
	ledger StockLedger,
	sessions session.Store,
	publisher events.Publisher,
	logger zerolog.Logger,
) NotificationProcessor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Provider == "" {
		cfg.Provider = "hosted"
	}
	logger = logger.With().Str("service", "notification").Logger()
	return &notificationProcessor{
		cfg:       cfg,
		orderRepo: orderRepo,
		sessions:  sessions,
		lifecycle: &lifecycle{orderRepo: orderRepo, ledger: ledger, logger: logger},
		promotion: &promotion{orderRepo: orderRepo, ledger: ledger},
		events:    publisher,
		logger:    logger,
	}
}

// Handle verifies a notification and applies it to the order or session it
// refers to. Redelivery of the same notification is safe.
func (p *notificationProcessor) Handle(ctx context.Context, raw []byte) (*model.NotificationResult, error) {
	result, err := p.handle(ctx, raw)
	if err != nil && !errors.Is(err, model.ErrProviderValidation) && !errors.Is(err, model.ErrPaidOutOfStock) {
		p.logger.Error().Err(err).Msg("payment notification could not be applied")
		p.events.Publish(ctx, events.New(events.AlertNotification, "", events.NotificationPayload{Reason: err.Error()}))
	}
	return result, err
}

func (p *notificationProcessor) handle(ctx context.Context, raw []byte) (*model.NotificationResult, error) {
	n, err := payment.ParseNotification(raw, p.cfg.ServerKey, p.cfg.Location)
	if err != nil {
		p.logger.Warn().Err(err).Msg("rejected payment notification")
		p.events.Publish(ctx, events.New(events.NotificationInvalid, "", events.NotificationPayload{Reason: err.Error()}))
		return nil, err
	}

	log := p.logger.With().
		Str("correlation_id", n.CorrelationID).
		Str("transaction_id", n.TransactionID).
		Str("provider_status", n.TransactionStatus).
		Logger()

	outcome, err := n.Outcome()
	if err != nil {
		log.Warn().Err(err).Msg("unsupported payment status")
		p.publish(ctx, events.NotificationInvalid, n, "", "", err.Error())
		return nil, err
	}

	existing, err := p.orderRepo.GetByCorrelationID(ctx, n.CorrelationID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve order for notification")
		return nil, fmt.Errorf("failed to resolve notification: %w", err)
	}
	if existing != nil {
		return p.applyDuplicate(ctx, n, outcome, log)
	}

	sess, err := p.sessions.Get(ctx, n.CorrelationID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// A concurrent delivery may have promoted and discarded the session.
			existing, lookupErr := p.orderRepo.GetByCorrelationID(ctx, n.CorrelationID)
			if lookupErr == nil && existing != nil {
				return p.applyDuplicate(ctx, n, outcome, log)
			}
			log.Warn().Str("outcome", string(outcome)).Msg("orphaned payment notification")
			p.publish(ctx, events.NotificationOrphaned, n, outcome, "", "no order or live checkout session")
			return &model.NotificationResult{
				Disposition:   model.DispositionOrphaned,
				CorrelationID: n.CorrelationID,
				Outcome:       outcome,
			}, nil
		}
		log.Error().Err(err).Msg("failed to load checkout session")
		return nil, fmt.Errorf("failed to resolve notification: %w", err)
	}

	if !n.GrossAmount.Equal(sess.Total) {
		err := model.NewValidationError(model.ErrCodeProviderValidation,
			"notification amount %s does not match checkout total %s",
			n.GrossAmount.StringFixed(2), sess.Total.StringFixed(2))
		log.Warn().Err(err).Msg("payment amount mismatch")
		p.publish(ctx, events.NotificationInvalid, n, outcome, "", err.Error())
		return nil, err
	}

	switch outcome {
	case model.OutcomeSettled:
		return p.promote(ctx, n, sess, model.StatusPaid, true, log)
	case model.OutcomePendingHold:
		return p.promote(ctx, n, sess, model.StatusPending, false, log)
	default:
		if err := p.sessions.Discard(ctx, n.CorrelationID); err != nil {
			log.Error().Err(err).Msg("failed to discard rejected session")
			return nil, fmt.Errorf("failed to discard session: %w", err)
		}
		log.Info().Msg("payment rejected, checkout session discarded")
		p.publish(ctx, events.NotificationRejected, n, outcome, "", "")
		return &model.NotificationResult{
			Disposition:   model.DispositionDiscarded,
			CorrelationID: n.CorrelationID,
			Outcome:       outcome,
		}, nil
	}
}

// promote turns a live session into an order. A settled payment takes stock in
// the same transaction. A held payment creates a PENDING order and keeps the session.
func (p *notificationProcessor) promote(
	ctx context.Context,
	n *payment.Notification,
	sess *model.CheckoutSession,
	status model.OrderStatus,
	decrement bool,
	log zerolog.Logger,
) (*model.NotificationResult, error) {
	outcome := model.OutcomePendingHold
	if decrement {
		outcome = model.OutcomeSettled
	}

	ctx, outbox := events.WithOutbox(ctx)
	tx, err := p.orderRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	defer rollback(ctx, tx, log)

	if err := p.orderRepo.LockCorrelation(ctx, tx, n.CorrelationID); err != nil {
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}

	existing, err := p.orderRepo.LockByCorrelationID(ctx, tx, n.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	if existing != nil {
		rollback(ctx, tx, log)
		return p.applyDuplicate(ctx, n, outcome, log)
	}

	order, err := p.promotion.create(ctx, tx, sess, status, decrement, n.Details(p.cfg.Provider), ActorPayment)
	if err != nil {
		var shortage *model.InsufficientStockError
		switch {
		case errors.As(err, &shortage):
			rollback(ctx, tx, log)
			return nil, p.paidOutOfStock(ctx, n, shortage, log)
		case errors.Is(err, repository.ErrDuplicateCorrelationID):
			rollback(ctx, tx, log)
			return p.applyDuplicate(ctx, n, outcome, log)
		}
		log.Error().Err(err).Msg("failed to create order from notification")
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	outbox.Flush(ctx, p.events)

	if decrement {
		if err := p.sessions.Discard(ctx, n.CorrelationID); err != nil {
			log.Error().Err(err).Msg("failed to discard promoted session")
		}
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(order.Status)).
		Msg("order created from payment notification")

	p.events.Publish(ctx, orderCreatedEvent(order))
	p.publish(ctx, events.NotificationAccepted, n, outcome, order.ID.String(), "")

	return &model.NotificationResult{
		Disposition:   model.DispositionAccepted,
		CorrelationID: n.CorrelationID,
		Outcome:       outcome,
		OrderID:       &order.ID,
		Status:        order.Status,
	}, nil
}

// applyDuplicate handles a notification for an order that already exists.
func (p *notificationProcessor) applyDuplicate(
	ctx context.Context,
	n *payment.Notification,
	outcome model.PaymentOutcome,
	log zerolog.Logger,
) (*model.NotificationResult, error) {
	ctx, outbox := events.WithOutbox(ctx)
	tx, err := p.orderRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	defer rollback(ctx, tx, log)

	if err := p.orderRepo.LockCorrelation(ctx, tx, n.CorrelationID); err != nil {
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}

	order, err := p.orderRepo.LockByCorrelationID(ctx, tx, n.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("failed to process notification: %w", model.ErrOrderNotFound)
	}

	result := &model.NotificationResult{
		Disposition:   model.DispositionDuplicate,
		CorrelationID: n.CorrelationID,
		Outcome:       outcome,
		OrderID:       &order.ID,
		Status:        order.Status,
	}

	if isStale(order.Payment, n) {
		log.Info().
			Str("order_id", order.ID.String()).
			Time("stored_time", *order.Payment.ProviderTime).
			Time("notification_time", *n.TransactionTime).
			Msg("stale payment notification ignored")
		p.publish(ctx, events.NotificationStale, n, outcome, order.ID.String(), "older than stored payment state")
		result.Disposition = model.DispositionStale
		return result, nil
	}

	if err := p.orderRepo.UpsertPayment(ctx, tx, order.ID, n.Details(p.cfg.Provider)); err != nil {
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}

	var target model.OrderStatus
	if order.Status == model.StatusPending {
		switch outcome {
		case model.OutcomeSettled:
			target = model.StatusPaid
		case model.OutcomeRejected:
			target = model.StatusCancelled
		}
	}

	var t *transition
	if target != "" {
		t, err = p.lifecycle.advance(ctx, tx, order, target, ActorPayment, "")
		if err != nil {
			var shortage *model.InsufficientStockError
			if errors.As(err, &shortage) {
				rollback(ctx, tx, log)
				return nil, p.paidOutOfStock(ctx, n, shortage, log)
			}
			log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to apply payment transition")
			return nil, fmt.Errorf("failed to process notification: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to process notification: %w", err)
	}
	outbox.Flush(ctx, p.events)

	result.Status = order.Status

	if t != nil {
		log.Info().
			Str("order_id", order.ID.String()).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("order advanced by payment notification")
		p.events.Publish(ctx, statusChangedEvent(order, t, ActorPayment))
		if t.To == model.StatusPaid || t.To == model.StatusCancelled {
			if err := p.sessions.Discard(ctx, n.CorrelationID); err != nil {
				log.Error().Err(err).Msg("failed to discard checkout session")
			}
		}
	} else {
		log.Info().Str("order_id", order.ID.String()).Msg("duplicate payment notification")
	}

	p.publish(ctx, events.NotificationDuplicate, n, outcome, order.ID.String(), "")

	return result, nil
}

// paidOutOfStock reports a settled payment that could not be fulfilled. The
// session is kept so the payment can be reconciled.
func (p *notificationProcessor) paidOutOfStock(
	ctx context.Context,
	n *payment.Notification,
	shortage *model.InsufficientStockError,
	log zerolog.Logger,
) error {
	details := make([]events.ShortageDetail, len(shortage.Items))
	for i, item := range shortage.Items {
		details[i] = events.ShortageDetail{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Requested: item.Requested,
			Available: item.Available,
		}
	}

	log.Error().
		Err(shortage).
		Str("amount", n.GrossAmount.StringFixed(2)).
		Msg("payment settled but stock is no longer available")

	p.events.Publish(ctx, events.New(events.AlertPaidOutOfStock, n.CorrelationID, events.NotificationPayload{
		CorrelationID: n.CorrelationID,
		TransactionID: n.TransactionID,
		Status:        n.TransactionStatus,
		Outcome:       string(model.OutcomeSettled),
		Reason:        shortage.Error(),
		Shortages:     details,
	}))

	return fmt.Errorf("%w: %w", model.ErrPaidOutOfStock, shortage)
}

func (p *notificationProcessor) publish(
	ctx context.Context,
	eventType string,
	n *payment.Notification,
	outcome model.PaymentOutcome,
	orderID, reason string,
) {
	p.events.Publish(ctx, events.New(eventType, n.CorrelationID, events.NotificationPayload{
		CorrelationID: n.CorrelationID,
		TransactionID: n.TransactionID,
		Status:        n.TransactionStatus,
		Outcome:       string(outcome),
		OrderID:       orderID,
		Reason:        reason,
	}))
}

// isStale reports whether the notification is older than the stored payment state.
func isStale(stored *model.PaymentDetails, n *payment.Notification) bool {
	if stored == nil || stored.ProviderTime == nil || n.TransactionTime == nil {
		return false
	}
	return n.TransactionTime.Before(*stored.ProviderTime)
}
