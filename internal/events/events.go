// Package events publishes domain events and operational alerts.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	StockDecrementAttempted = "stock.decrement.attempted"
	StockDecrementSucceeded = "stock.decrement.succeeded"
	StockDecrementFailed    = "stock.decrement.failed"
	StockIncremented        = "stock.incremented"
	StockAdjusted           = "stock.adjusted"

	NotificationAccepted  = "notification.accepted"
	NotificationDuplicate = "notification.duplicate"
	NotificationStale     = "notification.stale"
	NotificationOrphaned  = "notification.orphaned"
	NotificationRejected  = "notification.rejected"
	NotificationInvalid   = "notification.invalid"

	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"

	RefundRequested = "refund.requested"
	RefundResolved  = "refund.resolved"

	AlertPaidOutOfStock = "alert.paid_out_of_stock"
	AlertNotification   = "alert.notification_failed"
)

// Producer is stamped on every envelope.
const Producer = "stockguard"

// Envelope wraps every published event.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Key          string          `json:"key,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// IsAlert reports whether the event should page an operator.
func (e Envelope) IsAlert() bool {
	return len(e.EventType) > 6 && e.EventType[:6] == "alert."
}

// New builds an envelope. key is the partition key, usually a correlation or order id.
func New(eventType, key string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return Envelope{
		EventID:      ulid.Make().String(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     Producer,
		Key:          key,
		Payload:      raw,
	}
}

// Publisher delivers events. Publishing is best effort: implementations log
// their own failures and never block the caller's transaction.
type Publisher interface {
	Publish(ctx context.Context, e Envelope)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, e Envelope)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, e Envelope) {
	f(ctx, e)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Envelope) {})

type multi []Publisher

// Multi fans events out to every publisher in order.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, e Envelope) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}
