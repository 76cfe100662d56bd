package handler

import (
	"context"

	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

// MockCheckoutService is a mock implementation of CheckoutService.
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Stage(ctx context.Context, userID string, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutResponse), args.Error(1)
}

func (m *MockCheckoutService) ConfirmCashOnDelivery(ctx context.Context, correlationID, userID string) (*model.Order, error) {
	args := m.Called(ctx, correlationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Get(ctx context.Context, orderID uuid.UUID, requesterID string) (*model.Order, error) {
	args := m.Called(ctx, orderID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) Transition(ctx context.Context, orderID uuid.UUID, to model.OrderStatus, actorID string) (*model.Order, error) {
	args := m.Called(ctx, orderID, to, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

// MockRefundService is a mock implementation of RefundService.
type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) RequestRefund(ctx context.Context, orderID uuid.UUID, requesterID, reason string) (*model.OrderSummary, error) {
	args := m.Called(ctx, orderID, requesterID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderSummary), args.Error(1)
}

func (m *MockRefundService) ResolveRefund(ctx context.Context, orderID uuid.UUID, approve bool, actorID string) (*model.Order, error) {
	args := m.Called(ctx, orderID, approve, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

// MockProductService is a mock implementation of ProductService.
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductService) Availability(ctx context.Context, id string) (*model.Availability, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Availability), args.Error(1)
}

// MockNotificationProcessor is a mock implementation of NotificationProcessor.
type MockNotificationProcessor struct {
	mock.Mock
}

func (m *MockNotificationProcessor) Handle(ctx context.Context, raw []byte) (*model.NotificationResult, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NotificationResult), args.Error(1)
}

// MockStockLedger is a mock implementation of StockLedger. Only the
// operations exposed over HTTP are expected to be called.
type MockStockLedger struct {
	mock.Mock
}

func (m *MockStockLedger) Check(ctx context.Context, items []model.StockItem) error {
	return m.Called(ctx, items).Error(0)
}

func (m *MockStockLedger) Decrement(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error) {
	args := m.Called(ctx, tx, change)
	return args.Int(0), args.Error(1)
}

func (m *MockStockLedger) Increment(ctx context.Context, tx pgx.Tx, change model.StockChange) (int, error) {
	args := m.Called(ctx, tx, change)
	return args.Int(0), args.Error(1)
}

func (m *MockStockLedger) DecrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	return m.Called(ctx, tx, items, change).Error(0)
}

func (m *MockStockLedger) IncrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	return m.Called(ctx, tx, items, change).Error(0)
}

func (m *MockStockLedger) RecordIntent(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	return m.Called(ctx, tx, items, change).Error(0)
}

func (m *MockStockLedger) Adjust(ctx context.Context, req model.StockAdjustmentRequest) (*model.StockHistory, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockHistory), args.Error(1)
}

func (m *MockStockLedger) History(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error) {
	args := m.Called(ctx, productID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StockHistory), args.Error(1)
}

func (m *MockStockLedger) Audit(ctx context.Context, productID string, variantID *string) (*model.StockAudit, error) {
	args := m.Called(ctx, productID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockAudit), args.Error(1)
}
