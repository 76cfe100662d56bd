package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// lifecycle applies order state transitions together with their stock side
// effects. Every status write in the engine goes through it.
type lifecycle struct {
	orderRepo repository.OrderRepository
	ledger    StockLedger
	logger    zerolog.Logger
}

// transition records what a successful move did.
type transition struct {
	From        model.OrderStatus
	To          model.OrderStatus
	Decremented bool
	Compensated bool
}

// advance validates and applies from -> to on a locked order within tx.
//
// PENDING -> PAID decrements stock once if it was not committed yet. Entering
// CANCELLED or REFUNDED from a committed state increments it back, at most once
// per order and transition.
func (l *lifecycle) advance(ctx context.Context, tx pgx.Tx, order *model.Order, to model.OrderStatus, actorID, reason string) (*transition, error) {
	from := order.Status
	if err := model.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	t := &transition{From: from, To: to}
	committed := order.StockCommitted

	if from == model.StatusPending && to == model.StatusPaid && !committed {
		err := l.ledger.DecrementItems(ctx, tx, order.StockItems(), model.StockChange{
			Type:    model.ChangeSale,
			OrderID: &order.ID,
			Reason:  "order paid",
			ActorID: actorID,
		})
		if err != nil {
			return nil, err
		}
		committed = true
		t.Decremented = true
	}

	if (to == model.StatusCancelled || to == model.StatusRefunded) && committed {
		compensated, err := l.compensate(ctx, tx, order, from, to, actorID, reason)
		if err != nil {
			return nil, err
		}
		committed = false
		t.Compensated = compensated
	}

	if err := l.orderRepo.UpdateStatus(ctx, tx, order.ID, to, committed); err != nil {
		return nil, err
	}

	order.Status = to
	order.StockCommitted = committed
	order.UpdatedAt = time.Now().UTC()

	return t, nil
}

// revertRefund moves a REFUND_REQUESTED order back to its previous status without touching stock.
func (l *lifecycle) revertRefund(ctx context.Context, tx pgx.Tx, order *model.Order, to model.OrderStatus) (*transition, error) {
	from := order.Status
	if err := model.ValidateRefundRejection(from, to); err != nil {
		return nil, err
	}

	if err := l.orderRepo.UpdateStatus(ctx, tx, order.ID, to, order.StockCommitted); err != nil {
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()

	return &transition{From: from, To: to}, nil
}

func (l *lifecycle) compensate(ctx context.Context, tx pgx.Tx, order *model.Order, from, to model.OrderStatus, actorID, reason string) (bool, error) {
	key := fmt.Sprintf("%s->%s", from, to)

	claimed, err := l.orderRepo.RecordCompensation(ctx, tx, order.ID, key)
	if err != nil {
		return false, err
	}
	if !claimed {
		l.logger.Warn().
			Str("order_id", order.ID.String()).
			Str("transition", key).
			Msg("compensation already applied")
		return false, nil
	}

	change := model.StockChange{
		Type:    model.ChangeAdjustment,
		OrderID: &order.ID,
		Reason:  "order cancelled",
		ActorID: actorID,
	}
	if to == model.StatusRefunded {
		change.Type = model.ChangeRefund
		change.Reason = "refund approved"
	}
	if reason != "" {
		change.Reason = reason
	}

	if err := l.ledger.IncrementItems(ctx, tx, order.StockItems(), change); err != nil {
		return false, err
	}

	l.logger.Info().
		Str("order_id", order.ID.String()).
		Str("transition", key).
		Int("items", len(order.Items)).
		Msg("stock compensated")

	return true, nil
}

// promotion creates orders from checkout sessions.
type promotion struct {
	orderRepo repository.OrderRepository
	ledger    StockLedger
}

// create inserts the order, its items and sub-records within tx. When decrement
// is set, stock is taken for every item and the order is marked committed; a
// shortage fails the whole transaction.
func (p *promotion) create(
	ctx context.Context,
	tx pgx.Tx,
	sess *model.CheckoutSession,
	status model.OrderStatus,
	decrement bool,
	payment *model.PaymentDetails,
	actorID string,
) (*model.Order, error) {
	now := time.Now().UTC()
	order := &model.Order{
		ID:             uuid.New(),
		UserID:         sess.UserID,
		Status:         status,
		Total:          sess.Total,
		PaymentMethod:  sess.PaymentMethod,
		CorrelationID:  sess.CorrelationID,
		StockCommitted: decrement,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	order.Items = make([]model.OrderItem, len(sess.Items))
	for i, item := range sess.Items {
		order.Items[i] = model.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	if err := p.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := p.orderRepo.CreateOrderItems(ctx, tx, order.Items); err != nil {
		return nil, err
	}

	if decrement {
		err := p.ledger.DecrementItems(ctx, tx, order.StockItems(), model.StockChange{
			Type:    model.ChangeSale,
			OrderID: &order.ID,
			Reason:  "order " + sess.CorrelationID,
			ActorID: actorID,
		})
		if err != nil {
			return nil, err
		}
	}

	shipping := sess.Shipping
	if err := p.orderRepo.SaveShipping(ctx, tx, order.ID, &shipping); err != nil {
		return nil, err
	}
	order.Shipping = &shipping

	if payment != nil {
		if err := p.orderRepo.UpsertPayment(ctx, tx, order.ID, payment); err != nil {
			return nil, err
		}
		order.Payment = payment
	}

	return order, nil
}

func orderCreatedEvent(order *model.Order) events.Envelope {
	items := make([]events.StockItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = events.StockItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
	}
	return events.New(events.OrderCreated, order.CorrelationID, events.OrderPayload{
		OrderID:       order.ID.String(),
		CorrelationID: order.CorrelationID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		Total:         order.Total.StringFixed(2),
		Items:         items,
	})
}

func statusChangedEvent(order *model.Order, t *transition, actorID string) events.Envelope {
	return events.New(events.OrderStatusChanged, order.ID.String(), events.StatusChangedPayload{
		OrderID:     order.ID.String(),
		From:        string(t.From),
		To:          string(t.To),
		ActorID:     actorID,
		Compensated: t.Compensated,
	})
}

// rollback is deferred by services that manage their own transaction.
func rollback(ctx context.Context, tx pgx.Tx, logger zerolog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}
