// Package payment adapts the hosted payment page: it creates redirect sessions
// for staged checkouts and parses the provider's asynchronous notifications.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedProvider is returned when no provider is configured under a name.
var ErrUnsupportedProvider = errors.New("payment: unsupported provider")

// CheckoutRequest describes the payment page to open for a staged checkout.
type CheckoutRequest struct {
	CorrelationID string
	Amount        decimal.Decimal
	CustomerEmail string
	ExpiresAt     time.Time
}

// Checkout is what the storefront needs to send the customer to the payment page.
type Checkout struct {
	Provider    string
	RedirectURL string
	Token       string
}

// Provider opens payment pages with a payment service provider.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
}

// HostedProvider builds redirect links for a hosted payment page. The token is an
// HMAC over the correlation id and amount so the page can reject tampered links.
type HostedProvider struct {
	name      string
	baseURL   *url.URL
	serverKey []byte
}

// NewHostedProvider creates a hosted page provider.
func NewHostedProvider(name, baseURL, serverKey string) (*HostedProvider, error) {
	if serverKey == "" {
		return nil, errors.New("payment: server key is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("payment: invalid redirect base url %q", baseURL)
	}
	if name == "" {
		name = "hosted"
	}
	return &HostedProvider{name: name, baseURL: u, serverKey: []byte(serverKey)}, nil
}

// Name returns the provider name recorded on payment details.
func (p *HostedProvider) Name() string {
	return p.name
}

// CreateCheckout returns the redirect URL and token for a staged checkout.
func (p *HostedProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if err := ctx.Err(); err != nil {
		return Checkout{}, err
	}
	if req.CorrelationID == "" {
		return Checkout{}, errors.New("payment: correlation id is required")
	}

	amount := FormatAmount(req.Amount)
	token := p.token(req.CorrelationID, amount)

	u := *p.baseURL
	q := u.Query()
	q.Set("order_id", req.CorrelationID)
	q.Set("gross_amount", amount)
	q.Set("token", token)
	if !req.ExpiresAt.IsZero() {
		q.Set("expires_at", req.ExpiresAt.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	return Checkout{Provider: p.name, RedirectURL: u.String(), Token: token}, nil
}

func (p *HostedProvider) token(correlationID, amount string) string {
	mac := hmac.New(sha256.New, p.serverKey)
	mac.Write([]byte(correlationID))
	mac.Write([]byte{':'})
	mac.Write([]byte(amount))
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatAmount renders an amount the way the provider signs it: two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
