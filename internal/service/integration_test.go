package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stockguard/internal/database"
	"stockguard/internal/events"
	"stockguard/internal/model"
	"stockguard/internal/payment"
	"stockguard/internal/repository"
	"stockguard/internal/service"
	"stockguard/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const serverKey = "integration-key"

type engine struct {
	pool     *pgxpool.Pool
	now      time.Time
	nowMu    sync.Mutex
	sessions *session.MemoryStore
	ledger   service.StockLedger
	checkout service.CheckoutService
	orders   service.OrderService
	notify   service.NotificationProcessor
	refunds  service.RefundService
}

func (e *engine) clock() time.Time {
	e.nowMu.Lock()
	defer e.nowMu.Unlock()
	return e.now
}

func (e *engine) advance(d time.Duration) {
	e.nowMu.Lock()
	defer e.nowMu.Unlock()
	e.now = e.now.Add(d)
}

// setupEngine starts PostgreSQL, applies the schema and wires every service.
func setupEngine(t *testing.T) *engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	cfg.MaxConns = 30

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, pool, zerolog.Nop()))

	t.Cleanup(func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	})

	logger := zerolog.Nop()
	e := &engine{pool: pool, now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	e.sessions = session.NewMemoryStore(15*time.Minute, logger, session.WithClock(e.clock))

	productRepo := repository.NewProductRepository(pool, logger)
	historyRepo := repository.NewStockHistoryRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	refundRepo := repository.NewRefundRepository(pool, logger)

	provider, err := payment.NewHostedProvider("hosted", "https://pay.example.com", serverKey)
	require.NoError(t, err)

	e.ledger = service.NewStockLedger(pool, productRepo, historyRepo, events.Nop, logger)
	e.checkout = service.NewCheckoutService(productRepo, orderRepo, e.ledger, e.sessions, provider, events.Nop, logger)
	e.orders = service.NewOrderService(orderRepo, e.ledger, events.Nop, logger)
	e.notify = service.NewNotificationProcessor(
		service.NotificationConfig{ServerKey: serverKey, Provider: "hosted", Location: time.UTC},
		orderRepo, e.ledger, e.sessions, events.Nop, logger,
	)
	e.refunds = service.NewRefundService(orderRepo, refundRepo, e.ledger, events.Nop, logger)

	e.seed(t, "P001", "Lamp", "19.99", 5)
	e.seed(t, "P002", "Mug", "8.50", 50)

	return e
}

func (e *engine) seed(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	_, err := e.pool.Exec(context.Background(),
		"INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)",
		id, name, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
}

func (e *engine) stock(t *testing.T, productID string) int {
	t.Helper()
	var stock int
	err := e.pool.QueryRow(context.Background(), "SELECT stock FROM products WHERE id = $1", productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func (e *engine) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func (e *engine) stage(t *testing.T, userID string, method model.PaymentMethod, items ...model.CheckoutItemRequest) *model.CheckoutResponse {
	t.Helper()
	resp, err := e.checkout.Stage(context.Background(), userID, &model.CheckoutRequest{
		Items: items,
		Shipping: model.ShippingDetails{
			Name:       "Grace Hopper",
			Email:      "grace@example.com",
			Phone:      "555-0100",
			Address:    "1 Navy Yard",
			City:       "Arlington",
			PostalCode: "22202",
		},
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return resp
}

func notification(correlationID, status string, amount decimal.Decimal, at time.Time) []byte {
	gross := amount.StringFixed(2)
	body, _ := json.Marshal(map[string]string{
		"order_id":           correlationID,
		"transaction_id":     "tx-" + correlationID,
		"transaction_status": status,
		"status_code":        "200",
		"gross_amount":       gross,
		"payment_type":       "bank_transfer",
		"transaction_time":   at.UTC().Format("2006-01-02 15:04:05"),
		"signature_key":      payment.Signature(correlationID, "200", gross, serverKey),
	})
	return body
}

func assertAuditConsistent(t *testing.T, e *engine, productID string) {
	t.Helper()
	audit, err := e.ledger.Audit(context.Background(), productID, nil)
	require.NoError(t, err)
	assert.True(t, audit.Consistent, "audit of %s: current %d replayed %d", productID, audit.CurrentStock, audit.ReplayedStock)
}

func TestIntegration_ConcurrentSettlementsNeverOversell(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	const buyers = 12
	staged := make([]*model.CheckoutResponse, buyers)
	for i := range staged {
		staged[i] = e.stage(t, fmt.Sprintf("user-%d", i), model.PaymentCreditCard,
			model.CheckoutItemRequest{ProductID: "P001", Quantity: 1},
			model.CheckoutItemRequest{ProductID: "P002", Quantity: 1},
		)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		paid       int
		outOfStock int
	)
	for _, resp := range staged {
		wg.Add(1)
		go func(resp *model.CheckoutResponse) {
			defer wg.Done()
			_, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "settlement", resp.Total, e.clock()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case errors.Is(err, model.ErrPaidOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(resp)
	}
	wg.Wait()

	assert.Equal(t, 5, paid)
	assert.Equal(t, buyers-5, outOfStock)
	assert.Equal(t, 0, e.stock(t, "P001"))
	assert.Equal(t, 45, e.stock(t, "P002"))
	assert.Equal(t, 5, e.count(t, "SELECT COUNT(*) FROM orders WHERE status = 'PAID'"))
	assert.Equal(t, buyers-5, e.sessions.Len())
	assertAuditConsistent(t, e, "P001")
	assertAuditConsistent(t, e, "P002")
}

func TestIntegration_DuplicateDeliveriesCreateOneOrder(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentEWallet, model.CheckoutItemRequest{ProductID: "P002", Quantity: 3})
	body := notification(resp.CorrelationID, "settlement", resp.Total, e.clock())

	const deliveries = 8
	results := make([]*model.NotificationResult, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.notify.Handle(ctx, body)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Disposition == model.DispositionAccepted {
			accepted++
		} else {
			assert.Equal(t, model.DispositionDuplicate, results[i].Disposition)
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, e.count(t, "SELECT COUNT(*) FROM orders WHERE correlation_id = $1", resp.CorrelationID))
	assert.Equal(t, 47, e.stock(t, "P002"))
	assert.Equal(t, 1, e.count(t, "SELECT COUNT(*) FROM stock_history WHERE change_type = 'SALE'"))
	assertAuditConsistent(t, e, "P002")
}

func TestIntegration_ExpiredSessionIsOrphaned(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentCreditCard, model.CheckoutItemRequest{ProductID: "P001", Quantity: 1})
	e.advance(16 * time.Minute)

	result, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "settlement", resp.Total, e.clock()))

	require.NoError(t, err)
	assert.Equal(t, model.DispositionOrphaned, result.Disposition)
	assert.Equal(t, 5, e.stock(t, "P001"))
	assert.Equal(t, 0, e.count(t, "SELECT COUNT(*) FROM orders"))
}

func TestIntegration_PendingThenSettlementAndStaleNotification(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentBankTransfer, model.CheckoutItemRequest{ProductID: "P001", Quantity: 2})
	t0 := e.clock()

	pending, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "pending", resp.Total, t0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, pending.Status)
	assert.Equal(t, 5, e.stock(t, "P001"))

	settled, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "settlement", resp.Total, t0.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.DispositionDuplicate, settled.Disposition)
	assert.Equal(t, model.StatusPaid, settled.Status)
	assert.Equal(t, 3, e.stock(t, "P001"))

	stale, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "expire", resp.Total, t0.Add(5*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.DispositionStale, stale.Disposition)

	order, err := e.orders.Get(ctx, *settled.OrderID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, order.Status)
	assert.Equal(t, "settlement", order.Payment.ProviderStatus)
	assert.Equal(t, 3, e.stock(t, "P001"))
	assertAuditConsistent(t, e, "P001")
}

func TestIntegration_CashOnDeliveryCancelCompensatesOnce(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentCOD, model.CheckoutItemRequest{ProductID: "P001", Quantity: 2})

	order, err := e.checkout.ConfirmCashOnDelivery(ctx, resp.CorrelationID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, order.Status)
	assert.Equal(t, 3, e.stock(t, "P001"))

	again, err := e.checkout.ConfirmCashOnDelivery(ctx, resp.CorrelationID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)
	assert.Equal(t, 3, e.stock(t, "P001"))

	cancelled, err := e.orders.Transition(ctx, order.ID, model.StatusCancelled, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, e.stock(t, "P001"))

	_, err = e.orders.Transition(ctx, order.ID, model.StatusCancelled, "admin")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, 5, e.stock(t, "P001"))
	assert.Equal(t, 1, e.count(t, "SELECT COUNT(*) FROM stock_compensations WHERE order_id = $1", order.ID))
	assertAuditConsistent(t, e, "P001")
}

func TestIntegration_RefundWorkflow(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentCreditCard, model.CheckoutItemRequest{ProductID: "P002", Quantity: 4})
	result, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "settlement", resp.Total, e.clock()))
	require.NoError(t, err)
	orderID := *result.OrderID
	assert.Equal(t, 46, e.stock(t, "P002"))

	_, err = e.refunds.RequestRefund(ctx, orderID, "user-2", "not mine")
	assert.ErrorIs(t, err, model.ErrNotEligible)

	summary, err := e.refunds.RequestRefund(ctx, orderID, "user-1", "cracked")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefundRequested, summary.Status)
	assert.Equal(t, 46, e.stock(t, "P002"))

	_, err = e.refunds.RequestRefund(ctx, orderID, "user-1", "cracked")
	assert.ErrorIs(t, err, model.ErrAlreadyRequested)

	rejected, err := e.refunds.ResolveRefund(ctx, orderID, false, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, rejected.Status)
	assert.Equal(t, 46, e.stock(t, "P002"))

	again, err := e.refunds.RequestRefund(ctx, orderID, "user-1", "still cracked")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefundRequested, again.Status)

	_, err = e.refunds.RequestRefund(ctx, orderID, "user-1", "still cracked")
	assert.ErrorIs(t, err, model.ErrAlreadyRequested)

	refunded, err := e.refunds.ResolveRefund(ctx, orderID, true, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, refunded.Status)
	assert.Equal(t, 50, e.stock(t, "P002"))

	_, err = e.refunds.RequestRefund(ctx, orderID, "user-1", "once more")
	assert.ErrorIs(t, err, model.ErrAlreadyRequested)

	history, err := e.ledger.History(ctx, "P002", nil)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, model.ChangeSale, history[0].ChangeType)
	assert.Equal(t, model.ChangeRefund, history[1].ChangeType)
	assert.Equal(t, 0, history[1].QuantityDelta)
	assert.Equal(t, "cracked", history[1].Reason)
	assert.Equal(t, "still cracked", history[2].Reason)
	assert.Equal(t, 4, history[3].QuantityDelta)
	assertAuditConsistent(t, e, "P002")
}

func TestIntegration_RefundApprovalReturnsStock(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	resp := e.stage(t, "user-1", model.PaymentCreditCard, model.CheckoutItemRequest{ProductID: "P001", Quantity: 2})
	result, err := e.notify.Handle(ctx, notification(resp.CorrelationID, "settlement", resp.Total, e.clock()))
	require.NoError(t, err)
	orderID := *result.OrderID

	assert.Equal(t, 3, e.stock(t, "P001"))

	_, err = e.orders.Transition(ctx, orderID, model.StatusProcessing, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, e.stock(t, "P001"))

	_, err = e.refunds.RequestRefund(ctx, orderID, "user-1", "wrong colour")
	require.NoError(t, err)

	refunded, err := e.refunds.ResolveRefund(ctx, orderID, true, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, refunded.Status)
	assert.Equal(t, 5, e.stock(t, "P001"))

	_, err = e.refunds.ResolveRefund(ctx, orderID, true, "admin")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, 5, e.stock(t, "P001"))
	assertAuditConsistent(t, e, "P001")
}

func TestIntegration_ConcurrentAdjustmentsReplay(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := model.StockAdjustmentRequest{ProductID: "P002", Delta: 3, Type: model.ChangeRestock, Reason: "delivery", ActorID: "admin"}
			if i%2 == 1 {
				req = model.StockAdjustmentRequest{ProductID: "P002", Delta: -2, Type: model.ChangeDamage, Reason: "breakage", ActorID: "admin"}
			}
			_, err := e.ledger.Adjust(ctx, req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 55, e.stock(t, "P002"))

	audit, err := e.ledger.Audit(ctx, "P002", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, audit.Entries)
	assert.Equal(t, 55, audit.ReplayedStock)
	assert.True(t, audit.Consistent)
}
