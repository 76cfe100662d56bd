package events

// StockItem is a single line in a stock event.
type StockItem struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
}

// StockChangePayload reports a ledger mutation or an attempt at one.
type StockChangePayload struct {
	ProductID  string  `json:"product_id"`
	VariantID  *string `json:"variant_id,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
	ChangeType string  `json:"change_type"`
	Delta      int     `json:"delta"`
	NewStock   *int    `json:"new_stock,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ShortageDetail describes one unsatisfied line.
type ShortageDetail struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Requested int     `json:"requested"`
	Available int     `json:"available"`
}

// NotificationPayload reports how a payment notification was handled.
type NotificationPayload struct {
	CorrelationID string           `json:"correlation_id"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Status        string           `json:"provider_status,omitempty"`
	Outcome       string           `json:"outcome,omitempty"`
	OrderID       string           `json:"order_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Shortages     []ShortageDetail `json:"shortages,omitempty"`
}

// OrderPayload reports a created order.
type OrderPayload struct {
	OrderID       string      `json:"order_id"`
	CorrelationID string      `json:"correlation_id"`
	UserID        string      `json:"user_id"`
	Status        string      `json:"status"`
	Total         string      `json:"total"`
	Items         []StockItem `json:"items"`
}

// StatusChangedPayload reports an order state transition.
type StatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	ActorID     string `json:"actor_id"`
	Compensated bool   `json:"compensated"`
}

// RefundPayload reports a refund request or resolution.
type RefundPayload struct {
	OrderID  string `json:"order_id"`
	ActorID  string `json:"actor_id"`
	Reason   string `json:"reason,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
}
