package model

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPaid            OrderStatus = "PAID"
	StatusProcessing      OrderStatus = "PROCESSING"
	StatusShipped         OrderStatus = "SHIPPED"
	StatusDelivered       OrderStatus = "DELIVERED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRefundRequested OrderStatus = "REFUND_REQUESTED"
	StatusRefunded        OrderStatus = "REFUNDED"
)

// validNext is the complete set of allowed forward edges.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:         {StatusPaid: true, StatusCancelled: true},
	StatusPaid:            {StatusProcessing: true, StatusCancelled: true, StatusRefundRequested: true},
	StatusProcessing:      {StatusShipped: true, StatusRefundRequested: true},
	StatusShipped:         {StatusDelivered: true},
	StatusDelivered:       {},
	StatusCancelled:       {},
	StatusRefundRequested: {StatusRefunded: true},
	StatusRefunded:        {},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// ValidateTransition returns ErrInvalidTransition unless from -> to is an allowed edge.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return NewInvalidTransitionError(from, to)
	}
	return nil
}

// ValidateRefundRejection checks the reverse edge used when a refund request is declined.
// It is only valid from REFUND_REQUESTED back to PAID or PROCESSING.
func ValidateRefundRejection(from, to OrderStatus) error {
	if from != StatusRefundRequested || (to != StatusPaid && to != StatusProcessing) {
		return NewInvalidTransitionError(from, to)
	}
	return nil
}

// RefundEligible reports whether a refund may be requested for an order in status s.
func RefundEligible(s OrderStatus) bool {
	return s == StatusPaid || s == StatusProcessing
}
