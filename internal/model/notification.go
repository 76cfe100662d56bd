package model

import "github.com/google/uuid"

// PaymentOutcome is the internal tri-state a provider status maps to.
type PaymentOutcome string

const (
	OutcomeSettled     PaymentOutcome = "SETTLED"
	OutcomePendingHold PaymentOutcome = "PENDING_HOLD"
	OutcomeRejected    PaymentOutcome = "REJECTED"
)

// NotificationDisposition describes what the processor did with a notification.
type NotificationDisposition string

const (
	// DispositionAccepted means a first delivery was applied.
	DispositionAccepted NotificationDisposition = "ACCEPTED"
	// DispositionDuplicate means the notification referred to an existing order.
	DispositionDuplicate NotificationDisposition = "DUPLICATE"
	// DispositionStale means the notification was older than the last one applied.
	DispositionStale NotificationDisposition = "STALE"
	// DispositionOrphaned means neither an order nor a live session matched.
	DispositionOrphaned NotificationDisposition = "ORPHANED"
	// DispositionDiscarded means a rejected payment discarded its session.
	DispositionDiscarded NotificationDisposition = "DISCARDED"
)

// NotificationResult is the outcome of handling a single payment notification.
type NotificationResult struct {
	Disposition   NotificationDisposition `json:"disposition"`
	CorrelationID string                  `json:"correlationId"`
	Outcome       PaymentOutcome          `json:"outcome"`
	OrderID       *uuid.UUID              `json:"orderId,omitempty"`
	Status        OrderStatus             `json:"status,omitempty"`
}

// WebhookAck is the body returned to the payment provider.
type WebhookAck struct {
	Success bool `json:"success"`
}
