package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/payment"
	"stockguard/internal/repository"
	"stockguard/internal/session"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// checkoutService implements CheckoutService.
type checkoutService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	ledger      StockLedger
	sessions    session.Store
	provider    payment.Provider
	promotion   *promotion
	events      events.Publisher
	logger      zerolog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	ledger StockLedger,
	sessions session.Store,
	provider payment.Provider,
	publisher events.Publisher,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		ledger:      ledger,
		sessions:    sessions,
		provider:    provider,
		promotion:   &promotion{orderRepo: orderRepo, ledger: ledger},
		events:      publisher,
		logger:      logger.With().Str("service", "checkout").Logger(),
	}
}

// Stage validates the cart, runs the advisory stock check and stores a session.
// No stock is held: the authoritative check happens when payment settles.
func (s *checkoutService) Stage(ctx context.Context, userID string, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if err := s.validateRequest(userID, req); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("invalid checkout request")
		return nil, err
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	sess := &model.CheckoutSession{
		CorrelationID: ulid.Make().String(),
		UserID:        userID,
		Items:         items,
		Shipping:      normaliseShipping(req.Shipping),
		PaymentMethod: req.PaymentMethod,
		Total:         decimal.Zero,
	}
	for _, item := range items {
		sess.Total = sess.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if err := s.ledger.Check(ctx, sess.StockItems()); err != nil {
		s.logger.Info().Err(err).Str("user_id", userID).Msg("checkout rejected by stock check")
		return nil, err
	}

	if err := s.sessions.Stage(ctx, sess); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", sess.CorrelationID).Msg("failed to stage checkout session")
		return nil, fmt.Errorf("failed to stage checkout: %w", err)
	}

	resp := &model.CheckoutResponse{
		CorrelationID: sess.CorrelationID,
		Total:         sess.Total,
		ExpiresAt:     sess.ExpiresAt,
	}

	if sess.PaymentMethod != model.PaymentCOD {
		checkout, err := s.provider.CreateCheckout(ctx, payment.CheckoutRequest{
			CorrelationID: sess.CorrelationID,
			Amount:        sess.Total,
			CustomerEmail: sess.Shipping.Email,
			ExpiresAt:     sess.ExpiresAt,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("correlation_id", sess.CorrelationID).Msg("payment provider failed to open checkout")
			_ = s.sessions.Discard(ctx, sess.CorrelationID)
			return nil, fmt.Errorf("%w: %w", model.ErrProviderUnavailable, err)
		}
		resp.RedirectURL = checkout.RedirectURL
		resp.Token = checkout.Token
	}

	s.logger.Info().
		Str("correlation_id", sess.CorrelationID).
		Str("user_id", userID).
		Str("payment_method", string(sess.PaymentMethod)).
		Str("total", sess.Total.StringFixed(2)).
		Int("item_count", len(items)).
		Msg("checkout staged")

	return resp, nil
}

// ConfirmCashOnDelivery takes stock and creates the order in PENDING. Payment
// is collected on delivery and recorded later as PENDING -> PAID.
func (s *checkoutService) ConfirmCashOnDelivery(ctx context.Context, correlationID, userID string) (*model.Order, error) {
	sess, err := s.sessions.Get(ctx, correlationID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			existing, lookupErr := s.orderRepo.GetByCorrelationID(ctx, correlationID)
			if lookupErr == nil && existing != nil && existing.UserID == userID {
				return existing, nil
			}
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}

	if sess.UserID != userID {
		return nil, model.ErrSessionOwner
	}
	if sess.PaymentMethod != model.PaymentCOD {
		return nil, model.ErrNotCashOnDelivery
	}

	ctx, outbox := events.WithOutbox(ctx)
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	if err := s.orderRepo.LockCorrelation(ctx, tx, correlationID); err != nil {
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}

	existing, err := s.orderRepo.LockByCorrelationID(ctx, tx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}
	if existing != nil {
		_ = s.sessions.Discard(ctx, correlationID)
		return existing, nil
	}

	order, err := s.promotion.create(ctx, tx, sess, model.StatusPending, true, nil, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("failed to confirm cash on delivery order")
		if errors.Is(err, repository.ErrDuplicateCorrelationID) {
			return nil, fmt.Errorf("failed to confirm order: %w", err)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}
	outbox.Flush(ctx, s.events)

	if err := s.sessions.Discard(ctx, correlationID); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to discard promoted session")
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("correlation_id", correlationID).
		Msg("cash on delivery order confirmed")

	s.events.Publish(ctx, orderCreatedEvent(order))

	return order, nil
}

// priceItems merges duplicate lines, resolves products and freezes unit prices.
func (s *checkoutService) priceItems(ctx context.Context, lines []model.CheckoutItemRequest) ([]model.SessionItem, error) {
	index := make(map[string]int, len(lines))
	merged := make([]model.CheckoutItemRequest, 0, len(lines))
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))

	for _, line := range lines {
		key := model.StockItem{ProductID: line.ProductID, VariantID: line.VariantID}.Key()
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load products for checkout")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[string]*model.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]model.SessionItem, 0, len(merged))
	for _, line := range merged {
		product, ok := byID[line.ProductID]
		if !ok {
			s.logger.Warn().Str("product_id", line.ProductID).Msg("product not found")
			return nil, model.ErrProductNotFound
		}

		var variant *model.Variant
		if line.VariantID != nil {
			variant = product.Variant(*line.VariantID)
			if variant == nil {
				return nil, model.ErrProductNotFound
			}
		} else if product.HasVariants() {
			return nil, model.ErrVariantRequired
		}

		items = append(items, model.SessionItem{
			ProductID: product.ID,
			VariantID: line.VariantID,
			Name:      product.DisplayName(variant),
			Quantity:  line.Quantity,
			UnitPrice: product.UnitPrice(variant),
		})
	}

	return items, nil
}

func (s *checkoutService) validateRequest(userID string, req *model.CheckoutRequest) error {
	if strings.TrimSpace(userID) == "" {
		return model.NewValidationError(model.ErrCodeMissingField, "user is required")
	}
	if req == nil || len(req.Items) == 0 {
		return model.NewValidationError(model.ErrCodeMissingField, "checkout must contain at least one item")
	}

	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return model.NewValidationError(model.ErrCodeMissingField, "item %d: product ID is required", i)
		}
		if item.Quantity <= 0 {
			return model.NewValidationError(model.ErrCodeInvalidQuantity, "item %d: quantity must be greater than zero", i)
		}
	}

	sh := req.Shipping
	for _, f := range []struct{ name, value string }{
		{"name", sh.Name},
		{"email", sh.Email},
		{"phone", sh.Phone},
		{"address", sh.Address},
		{"city", sh.City},
		{"postalCode", sh.PostalCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			return model.NewValidationError(model.ErrCodeInvalidShipping, "shipping %s is required", f.name)
		}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(sh.Email)); err != nil {
		return model.NewValidationError(model.ErrCodeInvalidShipping, "shipping email is not valid")
	}

	if !req.PaymentMethod.Valid() {
		return model.ErrInvalidPayment
	}

	return nil
}

func normaliseShipping(sh model.ShippingDetails) model.ShippingDetails {
	return model.ShippingDetails{
		Name:       strings.TrimSpace(sh.Name),
		Email:      strings.TrimSpace(sh.Email),
		Phone:      strings.TrimSpace(sh.Phone),
		Address:    strings.TrimSpace(sh.Address),
		City:       strings.TrimSpace(sh.City),
		PostalCode: strings.TrimSpace(sh.PostalCode),
	}
}
