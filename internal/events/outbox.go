package events

import (
	"context"
	"sync"
)

type outboxKey struct{}

// Outbox holds events produced inside a database transaction until it commits.
type Outbox struct {
	mu      sync.Mutex
	pending []Envelope
}

// WithOutbox returns a context carrying a new, empty outbox.
func WithOutbox(ctx context.Context) (context.Context, *Outbox) {
	o := &Outbox{}
	return context.WithValue(ctx, outboxKey{}, o), o
}

// Defer holds e in the outbox carried by ctx. Without one, e is published immediately.
func Defer(ctx context.Context, p Publisher, e Envelope) {
	if o, ok := ctx.Value(outboxKey{}).(*Outbox); ok {
		o.mu.Lock()
		o.pending = append(o.pending, e)
		o.mu.Unlock()
		return
	}
	p.Publish(ctx, e)
}

// Flush publishes held events in the order they were deferred and empties the outbox.
// Call it only after the transaction has committed.
func (o *Outbox) Flush(ctx context.Context, p Publisher) {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, e := range pending {
		p.Publish(ctx, e)
	}
}

// Len returns the number of held events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
