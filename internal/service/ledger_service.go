package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// maxReasonLength bounds free-text reasons stored in the audit trail.
const maxReasonLength = 500

// stockLedger implements StockLedger.
type stockLedger struct {
	db          repository.TxBeginner
	productRepo repository.ProductRepository
	historyRepo repository.StockHistoryRepository
	events      events.Publisher
	logger      zerolog.Logger
}

// NewStockLedger creates a new stock ledger.
func NewStockLedger(
	db repository.TxBeginner,
	productRepo repository.ProductRepository,
	historyRepo repository.StockHistoryRepository,
	publisher events.Publisher,
	logger zerolog.Logger,
) StockLedger {
	return &stockLedger{
		db:          db,
		productRepo: productRepo,
		historyRepo: historyRepo,
		events:      publisher,
		logger:      logger.With().Str("service", "ledger").Logger(),
	}
}

// Check reports whether every item could be satisfied from current stock.
func (s *stockLedger) Check(ctx context.Context, items []model.StockItem) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(merged))
	seen := make(map[string]bool, len(merged))
	for _, item := range merged {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load products for stock check")
		return fmt.Errorf("failed to check stock: %w", err)
	}

	byID := make(map[string]*model.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	var shortages []model.StockShortage
	for _, item := range merged {
		product, ok := byID[item.ProductID]
		if !ok {
			return model.ErrProductNotFound
		}

		available, name, err := counterOf(product, item.VariantID)
		if err != nil {
			return err
		}

		if available < item.Quantity {
			shortages = append(shortages, model.StockShortage{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Name:      name,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}

	if len(shortages) > 0 {
		return &model.InsufficientStockError{Items: shortages}
	}
	return nil
}

// Decrement removes change.Quantity units from one counter.
func (s *stockLedger) Decrement(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error) {
	entry, done, err := s.apply(ctx, tx, change, -change.Quantity)
	if err != nil {
		return 0, err
	}
	events.Defer(ctx, s.events, done)
	return entry.NewStock, nil
}

// Increment adds change.Quantity units to one counter.
func (s *stockLedger) Increment(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error) {
	entry, done, err := s.apply(ctx, tx, change, change.Quantity)
	if err != nil {
		return 0, err
	}
	events.Defer(ctx, s.events, done)
	return entry.NewStock, nil
}

// DecrementItems decrements every item. All shortages are collected before
// failing. Success events are deferred only when every line succeeded.
func (s *stockLedger) DecrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}

	var (
		shortages []model.StockShortage
		done      []events.Envelope
	)
	for _, item := range merged {
		c := change
		c.ProductID = item.ProductID
		c.VariantID = item.VariantID
		c.Quantity = item.Quantity

		_, e, err := s.apply(ctx, tx, c, -c.Quantity)
		if err == nil {
			done = append(done, e)
			continue
		}

		var short *model.InsufficientStockError
		if !errors.As(err, &short) {
			return err
		}
		for _, sh := range short.Items {
			if item.Name != "" {
				sh.Name = item.Name
			}
			shortages = append(shortages, sh)
		}
	}

	if len(shortages) > 0 {
		return &model.InsufficientStockError{Items: shortages}
	}

	for _, e := range done {
		events.Defer(ctx, s.events, e)
	}
	return nil
}

// IncrementItems increments every item. Success events are deferred only when
// every line succeeded.
func (s *stockLedger) IncrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}

	done := make([]events.Envelope, 0, len(merged))
	for _, item := range merged {
		c := change
		c.ProductID = item.ProductID
		c.VariantID = item.VariantID
		c.Quantity = item.Quantity

		_, e, err := s.apply(ctx, tx, c, c.Quantity)
		if err != nil {
			return err
		}
		done = append(done, e)
	}

	for _, e := range done {
		events.Defer(ctx, s.events, e)
	}
	return nil
}

// RecordIntent appends a zero-delta record per item, snapshotting current stock.
func (s *stockLedger) RecordIntent(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}

	for _, item := range merged {
		current, err := s.productRepo.LockStock(ctx, tx, item.ProductID, item.VariantID)
		if err != nil {
			return err
		}

		entry := &model.StockHistory{
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			OrderID:       change.OrderID,
			ChangeType:    change.Type,
			QuantityDelta: 0,
			PreviousStock: current,
			NewStock:      current,
			Reason:        change.Reason,
			ActorID:       change.ActorID,
		}
		if err := s.historyRepo.Append(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// apply is the single read-modify-append step behind every stock mutation.
// Attempts and failures are published at once. The success event is returned
// for the caller to defer until the transaction commits.
func (s *stockLedger) apply(ctx context.Context, tx pgx.Tx, change model.StockChange, delta int) (*model.StockHistory, events.Envelope, error) {
	if change.Quantity <= 0 {
		return nil, events.Envelope{}, model.ErrInvalidQuantity
	}
	if !change.Type.Valid() {
		return nil, events.Envelope{}, model.NewValidationError(model.ErrCodeInvalidAdjustment, "unknown change type %q", change.Type)
	}

	payload := events.StockChangePayload{
		ProductID:  change.ProductID,
		VariantID:  change.VariantID,
		ChangeType: string(change.Type),
		Delta:      delta,
	}
	if change.OrderID != nil {
		payload.OrderID = change.OrderID.String()
	}
	key := stockKey(change.ProductID, change.VariantID)

	if delta < 0 {
		s.events.Publish(ctx, events.New(events.StockDecrementAttempted, key, payload))
	}

	entry, err := s.mutate(ctx, tx, change, delta)
	if err != nil {
		if delta < 0 {
			payload.Error = err.Error()
			s.events.Publish(ctx, events.New(events.StockDecrementFailed, key, payload))
		}
		return nil, events.Envelope{}, err
	}

	payload.NewStock = &entry.NewStock
	if delta < 0 {
		return entry, events.New(events.StockDecrementSucceeded, key, payload), nil
	}
	return entry, events.New(events.StockIncremented, key, payload), nil
}

func (s *stockLedger) mutate(ctx context.Context, tx pgx.Tx, change model.StockChange, delta int) (*model.StockHistory, error) {
	current, err := s.productRepo.LockStock(ctx, tx, change.ProductID, change.VariantID)
	if err != nil {
		return nil, err
	}

	next := current + delta
	if next < 0 {
		s.logger.Warn().
			Str("product_id", change.ProductID).
			Int("current", current).
			Int("requested", -delta).
			Msg("insufficient stock")
		return nil, &model.InsufficientStockError{Items: []model.StockShortage{{
			ProductID: change.ProductID,
			VariantID: change.VariantID,
			Name:      stockKey(change.ProductID, change.VariantID),
			Requested: -delta,
			Available: current,
		}}}
	}

	if err := s.productRepo.SetStock(ctx, tx, change.ProductID, change.VariantID, next); err != nil {
		return nil, err
	}

	entry := &model.StockHistory{
		ProductID:     change.ProductID,
		VariantID:     change.VariantID,
		OrderID:       change.OrderID,
		ChangeType:    change.Type,
		QuantityDelta: delta,
		PreviousStock: current,
		NewStock:      next,
		Reason:        change.Reason,
		ActorID:       change.ActorID,
	}
	if err := s.historyRepo.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("product_id", change.ProductID).
		Str("change_type", string(change.Type)).
		Int("delta", delta).
		Int("new_stock", next).
		Msg("stock changed")

	return entry, nil
}

// Adjust applies a manual adjustment in its own transaction.
func (s *stockLedger) Adjust(ctx context.Context, req model.StockAdjustmentRequest) (*model.StockHistory, error) {
	if err := validateAdjustment(&req); err != nil {
		s.logger.Warn().Err(err).Str("product_id", req.ProductID).Msg("invalid stock adjustment")
		return nil, err
	}

	change := model.StockChange{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  abs(req.Delta),
		Type:      req.Type,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	}

	var (
		entry *model.StockHistory
		done  events.Envelope
	)
	err := repository.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		entry, done, err = s.apply(ctx, tx, change, req.Delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", req.ProductID).
		Str("change_type", string(req.Type)).
		Int("delta", req.Delta).
		Int("new_stock", entry.NewStock).
		Str("actor_id", req.ActorID).
		Msg("stock adjusted")

	s.events.Publish(ctx, done)
	s.events.Publish(ctx, events.New(events.StockAdjusted, stockKey(req.ProductID, req.VariantID), events.StockChangePayload{
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		ChangeType: string(req.Type),
		Delta:      req.Delta,
		NewStock:   &entry.NewStock,
	}))

	return entry, nil
}

// History returns the audit trail of one counter.
func (s *stockLedger) History(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error) {
	if err := s.ensureCounter(ctx, productID, variantID); err != nil {
		return nil, err
	}
	return s.historyRepo.List(ctx, productID, variantID)
}

// Audit replays the trail from the first record's baseline. Stock seeded
// before the first record carries no delta of its own; it is reported as
// BaselineStock and the replay starts from it. The trail is consistent when
// every record continues from the previous one and baseline plus all deltas
// equals the stored counter. With no records the baseline is the counter.
func (s *stockLedger) Audit(ctx context.Context, productID string, variantID *string) (*model.StockAudit, error) {
	if err := s.ensureCounter(ctx, productID, variantID); err != nil {
		return nil, err
	}

	entries, err := s.historyRepo.List(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	current, err := s.productRepo.GetStock(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	audit := &model.StockAudit{
		ProductID:     productID,
		VariantID:     variantID,
		BaselineStock: current,
		CurrentStock:  current,
		ReplayedStock: current,
		Entries:       len(entries),
		Consistent:    true,
	}

	if len(entries) == 0 {
		return audit, nil
	}

	audit.BaselineStock = entries[0].PreviousStock
	replayed := audit.BaselineStock
	for _, e := range entries {
		if e.PreviousStock != replayed || e.PreviousStock+e.QuantityDelta != e.NewStock {
			audit.Consistent = false
		}
		replayed += e.QuantityDelta
	}

	audit.ReplayedStock = replayed
	if replayed != current {
		audit.Consistent = false
	}

	if !audit.Consistent {
		s.logger.Error().
			Str("product_id", productID).
			Int("current", current).
			Int("replayed", replayed).
			Msg("stock audit trail does not match counter")
	}

	return audit, nil
}

// ensureCounter checks that the product exists and the variant belongs to it.
func (s *stockLedger) ensureCounter(ctx context.Context, productID string, variantID *string) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return model.ErrProductNotFound
	}
	if variantID != nil && product.Variant(*variantID) == nil {
		return model.ErrProductNotFound
	}
	return nil
}

// counterOf returns the stock and display name of the counter an item draws from.
func counterOf(p *model.Product, variantID *string) (int, string, error) {
	if variantID == nil {
		if p.HasVariants() {
			return 0, "", model.ErrVariantRequired
		}
		return p.Stock, p.Name, nil
	}
	v := p.Variant(*variantID)
	if v == nil {
		return 0, "", model.ErrProductNotFound
	}
	return v.Stock, p.DisplayName(v), nil
}

// mergeItems validates items, merges lines for the same counter and sorts them
// by counter so concurrent multi-line operations lock rows in the same order.
func mergeItems(items []model.StockItem) ([]model.StockItem, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError(model.ErrCodeMissingField, "at least one item is required")
	}

	index := make(map[string]int, len(items))
	merged := make([]model.StockItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, model.NewValidationError(model.ErrCodeMissingField, "product ID is required")
		}
		if item.Quantity <= 0 {
			return nil, model.ErrInvalidQuantity
		}
		if i, ok := index[item.Key()]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.Key()] = len(merged)
		merged = append(merged, item)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Key() < merged[j].Key()
	})
	return merged, nil
}

func validateAdjustment(req *model.StockAdjustmentRequest) error {
	req.Reason = strings.TrimSpace(req.Reason)

	switch {
	case strings.TrimSpace(req.ProductID) == "":
		return model.NewValidationError(model.ErrCodeMissingField, "product ID is required")
	case !req.Type.AdminAdjustable():
		return model.NewValidationError(model.ErrCodeInvalidAdjustment, "type must be ADJUSTMENT, RESTOCK or DAMAGE")
	case req.Delta == 0:
		return model.NewValidationError(model.ErrCodeInvalidAdjustment, "delta must not be zero")
	case req.Type == model.ChangeRestock && req.Delta < 0:
		return model.NewValidationError(model.ErrCodeInvalidAdjustment, "restock delta must be positive")
	case req.Type == model.ChangeDamage && req.Delta > 0:
		return model.NewValidationError(model.ErrCodeInvalidAdjustment, "damage delta must be negative")
	case req.Reason == "":
		return model.ErrInvalidReason
	case len([]rune(req.Reason)) > maxReasonLength:
		return model.NewValidationError(model.ErrCodeInvalidReason, "reason must be at most %d characters", maxReasonLength)
	case strings.TrimSpace(req.ActorID) == "":
		return model.NewValidationError(model.ErrCodeMissingField, "actor is required")
	}
	return nil
}

func stockKey(productID string, variantID *string) string {
	return model.StockItem{ProductID: productID, VariantID: variantID}.Key()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
