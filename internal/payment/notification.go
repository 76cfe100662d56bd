package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"stockguard/internal/model"

	"github.com/shopspring/decimal"
)

// transactionTimeLayout is the provider's timestamp format.
const transactionTimeLayout = "2006-01-02 15:04:05"

// Notification is a verified payment status notification.
type Notification struct {
	CorrelationID     string
	TransactionID     string
	TransactionStatus string
	StatusCode        string
	GrossAmount       decimal.Decimal
	FraudStatus       string
	PaymentType       string
	TransactionTime   *time.Time
	Raw               json.RawMessage
}

type wireNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SignatureKey      string `json:"signature_key"`
}

// Signature computes hex(SHA-512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// ParseNotification decodes a notification body, checks required fields and
// verifies its signature. Any failure is a ProviderValidationFailed error.
func ParseNotification(raw []byte, serverKey string, loc *time.Location) (*Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, invalid("malformed notification body")
	}

	missing := []string{}
	for field, value := range map[string]string{
		"order_id":           w.OrderID,
		"transaction_id":     w.TransactionID,
		"transaction_status": w.TransactionStatus,
		"status_code":        w.StatusCode,
		"gross_amount":       w.GrossAmount,
		"signature_key":      w.SignatureKey,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, invalid("notification is missing required fields: " + strings.Join(missing, ", "))
	}

	expected := Signature(w.OrderID, w.StatusCode, w.GrossAmount, serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(w.SignatureKey))) != 1 {
		return nil, invalid("notification signature does not match")
	}

	amount, err := decimal.NewFromString(w.GrossAmount)
	if err != nil || amount.IsNegative() {
		return nil, invalid("notification gross amount is not a valid amount")
	}

	n := &Notification{
		CorrelationID:     w.OrderID,
		TransactionID:     w.TransactionID,
		TransactionStatus: strings.ToLower(w.TransactionStatus),
		StatusCode:        w.StatusCode,
		GrossAmount:       amount,
		FraudStatus:       strings.ToLower(w.FraudStatus),
		PaymentType:       w.PaymentType,
		Raw:               json.RawMessage(append([]byte(nil), raw...)),
	}

	if w.TransactionTime != "" {
		t, err := parseTransactionTime(w.TransactionTime, loc)
		if err != nil {
			return nil, invalid("notification transaction time is not valid")
		}
		n.TransactionTime = &t
	}

	return n, nil
}

func parseTransactionTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(transactionTimeLayout, s, loc); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// MapStatus maps the provider status vocabulary onto the internal outcome.
// Refund statuses and anything unknown are rejected: refunds are driven from
// the refund workflow, never by the provider.
func MapStatus(transactionStatus, fraudStatus string) (model.PaymentOutcome, error) {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return model.OutcomeSettled, nil
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return model.OutcomeSettled, nil
		case "challenge":
			return model.OutcomePendingHold, nil
		case "deny":
			return model.OutcomeRejected, nil
		}
		return "", invalid("unknown fraud status " + fraudStatus)
	case "pending", "authorize":
		return model.OutcomePendingHold, nil
	case "deny", "cancel", "expire", "failure":
		return model.OutcomeRejected, nil
	}
	return "", invalid("unsupported transaction status " + transactionStatus)
}

// Outcome maps the notification's status onto the internal outcome.
func (n *Notification) Outcome() (model.PaymentOutcome, error) {
	return MapStatus(n.TransactionStatus, n.FraudStatus)
}

// Details builds the payment sub-record stored on the order.
func (n *Notification) Details(provider string) *model.PaymentDetails {
	return &model.PaymentDetails{
		Provider:       provider,
		TransactionID:  n.TransactionID,
		ProviderStatus: n.TransactionStatus,
		Amount:         n.GrossAmount,
		RawPayload:     n.Raw,
		ProviderTime:   n.TransactionTime,
	}
}

func invalid(msg string) error {
	return model.NewValidationError(model.ErrCodeProviderValidation, "%s", msg)
}
