package service

import (
	"context"
	"sync"

	"stockguard/internal/events"
	"stockguard/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) LockStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string) (int, error) {
	args := m.Called(ctx, tx, productID, variantID)
	return args.Int(0), args.Error(1)
}

func (m *MockProductRepository) SetStock(ctx context.Context, tx pgx.Tx, productID string, variantID *string, stock int) error {
	args := m.Called(ctx, tx, productID, variantID, stock)
	return args.Error(0)
}

func (m *MockProductRepository) GetStock(ctx context.Context, productID string, variantID *string) (int, error) {
	args := m.Called(ctx, productID, variantID)
	return args.Int(0), args.Error(1)
}

// MockStockHistoryRepository is a mock implementation of StockHistoryRepository.
type MockStockHistoryRepository struct {
	mock.Mock
}

func (m *MockStockHistoryRepository) Append(ctx context.Context, tx pgx.Tx, entry *model.StockHistory) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *MockStockHistoryRepository) List(ctx context.Context, productID string, variantID *string) ([]model.StockHistory, error) {
	args := m.Called(ctx, productID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StockHistory), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) LockCorrelation(ctx context.Context, tx pgx.Tx, correlationID string) error {
	args := m.Called(ctx, tx, correlationID)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveShipping(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, shipping *model.ShippingDetails) error {
	args := m.Called(ctx, tx, orderID, shipping)
	return args.Error(0)
}

func (m *MockOrderRepository) UpsertPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, payment *model.PaymentDetails) error {
	args := m.Called(ctx, tx, orderID, payment)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Order, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) LockByCorrelationID(ctx context.Context, tx pgx.Tx, correlationID string) (*model.Order, error) {
	args := m.Called(ctx, tx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus, stockCommitted bool) error {
	args := m.Called(ctx, tx, id, status, stockCommitted)
	return args.Error(0)
}

func (m *MockOrderRepository) RecordCompensation(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, transition string) (bool, error) {
	args := m.Called(ctx, tx, orderID, transition)
	return args.Bool(0), args.Error(1)
}

// MockRefundRepository is a mock implementation of RefundRepository.
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Create(ctx context.Context, tx pgx.Tx, req *model.RefundRequest) error {
	args := m.Called(ctx, tx, req)
	return args.Error(0)
}

func (m *MockRefundRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*model.RefundRequest, error) {
	args := m.Called(ctx, tx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundRequest), args.Error(1)
}

func (m *MockRefundRepository) Resolve(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, approved bool, actorID string) error {
	args := m.Called(ctx, tx, orderID, approved, actorID)
	return args.Error(0)
}

// MockStockLedger is a mock implementation of StockLedger.
type MockStockLedger struct {
	mock.Mock
}

func (m *MockStockLedger) Check(ctx context.Context, items []model.StockItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
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
	args := m.Called(ctx, tx, items, change)
	return args.Error(0)
}

func (m *MockStockLedger) IncrementItems(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	args := m.Called(ctx, tx, items, change)
	return args.Error(0)
}

func (m *MockStockLedger) RecordIntent(ctx context.Context, tx pgx.Tx, items []model.StockItem, change model.StockChange) error {
	args := m.Called(ctx, tx, items, change)
	return args.Error(0)
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

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

// newMockTx returns a MockTx whose deferred Rollback is always allowed.
func newMockTx() *MockTx {
	tx := new(MockTx)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()
	return tx
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	if m.committed {
		return pgx.ErrTxClosed
	}
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// MockTxBeginner hands out a prepared transaction.
type MockTxBeginner struct {
	mock.Mock
}

func (m *MockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

// anyCtx matches any context. Services attach an event outbox to the context
// they pass down, so expectations cannot use the caller's value.
var anyCtx = mock.MatchedBy(func(context.Context) bool { return true })

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}
