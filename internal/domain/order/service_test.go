package order_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/example/stock-reservation/internal/infrastructure/store/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errNoStock = fmt.Errorf("%w: insufficient available stock", aggregate.ErrExhausted)

// fakeInventory keeps prices and stock in memory and records protocol calls.
type fakeInventory struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	stock      map[string]int
	reserved   map[string]int
	done       map[string]bool
	ttls       []time.Duration
	confirmed  [][]string
	confirmErr error
	// lostReplies confirms are applied but answered as unavailable.
	lostReplies int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		prices:   map[string]decimal.Decimal{},
		stock:    map[string]int{},
		reserved: map[string]int{},
		done:     map[string]bool{},
	}
}

func (f *fakeInventory) addProduct(price string, stock int) string {
	id := uuid.NewString()
	f.prices[id] = decimal.RequireFromString(price)
	f.stock[id] = stock
	return id
}

func (f *fakeInventory) GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: product %s", aggregate.ErrNotFound, productID)
	}
	return price, nil
}

func (f *fakeInventory) CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (order.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls = append(f.ttls, ttl)
	if f.stock[productID]-f.reserved[productID] < quantity {
		return order.Reservation{}, errNoStock
	}
	f.reserved[productID] += quantity
	return order.Reservation{ID: uuid.NewString(), ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeInventory) ConfirmReservations(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, ids)
	if f.confirmErr != nil {
		return f.confirmErr
	}
	for _, id := range ids {
		if f.done[id] {
			return fmt.Errorf("%w: %s", inventory.ErrAlreadyConfirmed, id)
		}
	}
	for _, id := range ids {
		f.done[id] = true
	}
	if f.lostReplies > 0 {
		f.lostReplies--
		return fmt.Errorf("%w: context deadline exceeded", order.ErrInventoryUnavailable)
	}
	return nil
}

type fixture struct {
	db   *mocks.MemoryStore
	inv  *fakeInventory
	svc  *order.Service
	logs *observer.ObservedLogs
}

func newFixture() *fixture {
	core, logs := observer.New(zapcore.InfoLevel)
	f := &fixture{db: mocks.NewMemoryStore(), inv: newFakeInventory(), logs: logs}
	f.svc = order.NewService(f.db.BeginOrders, f.inv, zap.New(core), 5*time.Minute)
	return f
}

func (f *fixture) place(t *testing.T, lines ...order.LineRequest) *order.Order {
	t.Helper()
	o, err := f.svc.Place(context.Background(), "customer-1", lines, "customer-1")
	require.NoError(t, err)
	return o
}

// ============================================
// Place Tests
// ============================================

func TestPlace_Success(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10.50", 10)
	b := f.inv.addProduct("4.00", 10)

	o := f.place(t,
		order.LineRequest{ProductID: a, Quantity: 2},
		order.LineRequest{ProductID: b, Quantity: 1},
	)

	assert.Equal(t, order.StatusSubmitted, o.Status)
	assert.True(t, decimal.NewFromInt(25).Equal(o.Total))
	require.Len(t, o.Lines, 2)
	assert.True(t, decimal.RequireFromString("10.50").Equal(o.Lines[0].UnitPrice))

	require.Len(t, f.inv.confirmed, 1)
	assert.Len(t, f.inv.confirmed[0], 2)
	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute}, f.inv.ttls)

	stored, ok := f.db.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, order.StatusSubmitted, stored.Status)
	assert.Len(t, f.db.Outbox(), 1)
}

func TestPlace_ConfirmationFailureCancelsOrder(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	f.inv.confirmErr = fmt.Errorf("%w: reservation expired", aggregate.ErrConflict)

	o, err := f.svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: a, Quantity: 1}}, "customer-1")

	require.Error(t, err)
	assert.Nil(t, o)

	outbox := f.db.Outbox()
	require.Len(t, outbox, 2)
	stored, ok := f.db.Order(outbox[0].CorrelationID)
	require.True(t, ok)
	assert.Equal(t, order.StatusCancelled, stored.Status)
	assert.Equal(t, order.CancelReasonConfirmationFailed, stored.CancelReason)
	assert.Equal(t, "system", stored.UpdatedBy)
}

func TestPlace_LostConfirmReplyIsRetried(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	f.inv.lostReplies = 1

	o, err := f.svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: a, Quantity: 1}}, "customer-1")

	require.NoError(t, err)
	assert.Len(t, f.inv.confirmed, 2)
	stored, _ := f.db.Order(o.ID)
	assert.Equal(t, order.StatusSubmitted, stored.Status)
}

func TestPlace_UnknownConfirmOutcomeKeepsOrder(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	f.inv.confirmErr = fmt.Errorf("%w: 502 bad gateway", order.ErrInventoryUnavailable)

	o, err := f.svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: a, Quantity: 1}}, "customer-1")

	assert.ErrorIs(t, err, order.ErrInventoryUnavailable)
	assert.Nil(t, o)
	require.Len(t, f.inv.confirmed, 2)

	outbox := f.db.Outbox()
	require.Len(t, outbox, 1)
	stored, ok := f.db.Order(outbox[0].CorrelationID)
	require.True(t, ok)
	assert.Equal(t, order.StatusSubmitted, stored.Status)

	entries := f.logs.FilterMessage("reservation confirmation outcome unknown, order left submitted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, stored.ID, fields["order_id"])
	require.Len(t, f.inv.confirmed[0], 1)
	assert.Equal(t, []any{f.inv.confirmed[0][0]}, fields["reservation_ids"])
}

func TestPlace_RefusedByRemoteCancelsOrder(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	f.inv.confirmErr = fmt.Errorf("inventory: forbidden (403): %w", order.ErrInventoryRefused)

	_, err := f.svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: a, Quantity: 1}}, "customer-1")

	require.ErrorIs(t, err, order.ErrInventoryRefused)
	outbox := f.db.Outbox()
	require.Len(t, outbox, 2)
	stored, _ := f.db.Order(outbox[0].CorrelationID)
	assert.Equal(t, order.StatusCancelled, stored.Status)
}

func TestPlace_ReservationFailureStoresNothing(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	b := f.inv.addProduct("10", 1)

	_, err := f.svc.Place(context.Background(), "customer-1", []order.LineRequest{
		{ProductID: a, Quantity: 1},
		{ProductID: b, Quantity: 2},
	}, "customer-1")

	assert.ErrorIs(t, err, aggregate.ErrExhausted)
	assert.Zero(t, f.db.CommitCalls)
	assert.Empty(t, f.inv.confirmed)
}

func TestPlace_UnknownProduct(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: uuid.NewString(), Quantity: 1}}, "customer-1")

	assert.ErrorIs(t, err, aggregate.ErrNotFound)
	assert.Empty(t, f.inv.ttls)
}

func TestPlace_Validation(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("10", 10)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, " ", []order.LineRequest{{ProductID: a, Quantity: 1}}, "x")
	assert.ErrorIs(t, err, order.ErrCustomerRequired)

	_, err = f.svc.Place(ctx, "customer-1", nil, "x")
	assert.ErrorIs(t, err, order.ErrLinesRequired)

	_, err = f.svc.Place(ctx, "customer-1", []order.LineRequest{{ProductID: a, Quantity: 0}}, "x")
	assert.ErrorIs(t, err, order.ErrInvalidLine)

	assert.Empty(t, f.inv.ttls)
}

// ============================================
// AddLines / RemoveLine Tests
// ============================================

func TestAddLines_Success(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	b := f.inv.addProduct("12", 10)
	o := f.place(t, order.LineRequest{ProductID: a, Quantity: 1})

	updated, err := f.svc.AddLines(context.Background(), o.ID,
		[]order.LineRequest{{ProductID: b, Quantity: 3}}, "customer-1")

	require.NoError(t, err)
	assert.Len(t, updated.Lines, 2)
	assert.True(t, decimal.NewFromInt(61).Equal(updated.Total))
	assert.Len(t, f.inv.confirmed, 2)
}

func TestAddLines_ConfirmationFailureRemovesLines(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	b := f.inv.addProduct("12", 10)
	o := f.place(t, order.LineRequest{ProductID: a, Quantity: 1})
	f.inv.confirmErr = fmt.Errorf("%w: stock gone", aggregate.ErrExhausted)

	_, err := f.svc.AddLines(context.Background(), o.ID,
		[]order.LineRequest{{ProductID: b, Quantity: 3}}, "customer-1")

	require.Error(t, err)
	stored, _ := f.db.Order(o.ID)
	assert.Len(t, stored.Lines, 1)
	assert.True(t, decimal.NewFromInt(25).Equal(stored.Total))
	assert.Equal(t, order.StatusSubmitted, stored.Status)
	assert.Equal(t, 3, stored.Version)
}

func TestAddLines_UnknownConfirmOutcomeKeepsLines(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	b := f.inv.addProduct("12", 10)
	o := f.place(t, order.LineRequest{ProductID: a, Quantity: 1})
	f.inv.confirmErr = order.ErrInventoryUnavailable

	_, err := f.svc.AddLines(context.Background(), o.ID,
		[]order.LineRequest{{ProductID: b, Quantity: 3}}, "customer-1")

	assert.ErrorIs(t, err, order.ErrInventoryUnavailable)
	stored, _ := f.db.Order(o.ID)
	assert.Len(t, stored.Lines, 2)
	assert.True(t, decimal.NewFromInt(61).Equal(stored.Total))
}

func TestAddLines_PaidOrderIsNotModifiable(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	o := f.place(t, order.LineRequest{ProductID: a, Quantity: 1})
	_, err := f.svc.Pay(context.Background(), o.ID, "customer-1")
	require.NoError(t, err)

	_, err = f.svc.AddLines(context.Background(), o.ID,
		[]order.LineRequest{{ProductID: a, Quantity: 1}}, "customer-1")

	assert.ErrorIs(t, err, order.ErrOrderNotModifiable)
	assert.Len(t, f.inv.ttls, 1)
}

func TestRemoveLine(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	b := f.inv.addProduct("12", 10)
	o := f.place(t,
		order.LineRequest{ProductID: a, Quantity: 1},
		order.LineRequest{ProductID: b, Quantity: 3},
	)
	ctx := context.Background()

	updated, err := f.svc.RemoveLine(ctx, o.ID, o.Lines[0].ID, "customer-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(36).Equal(updated.Total))

	_, err = f.svc.RemoveLine(ctx, o.ID, updated.Lines[0].ID, "customer-1")
	assert.ErrorIs(t, err, order.ErrEmptyOrder)

	_, err = f.svc.RemoveLine(ctx, o.ID, uuid.NewString(), "customer-1")
	assert.ErrorIs(t, err, order.ErrLineNotFound)

	stored, _ := f.db.Order(o.ID)
	assert.Len(t, stored.Lines, 1)
}

// ============================================
// Status Tests
// ============================================

func TestPayAndCancel(t *testing.T) {
	f := newFixture()
	a := f.inv.addProduct("25", 10)
	o := f.place(t, order.LineRequest{ProductID: a, Quantity: 1})
	ctx := context.Background()

	paid, err := f.svc.Pay(ctx, o.ID, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)

	_, err = f.svc.Pay(ctx, o.ID, "customer-1")
	assert.ErrorIs(t, err, order.ErrOrderAlreadyPaid)

	cancelled, err := f.svc.Cancel(ctx, o.ID, "changed mind", "customer-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, "changed mind", cancelled.CancelReason)

	_, err = f.svc.Cancel(ctx, o.ID, "again", "customer-1")
	assert.ErrorIs(t, err, order.ErrOrderCancelled)
	assert.ErrorIs(t, err, aggregate.ErrConflict)
}

func TestGet_Errors(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Get(context.Background(), "42")
	assert.ErrorIs(t, err, order.ErrInvalidID)

	_, err = f.svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Against the inventory service
// ============================================

// replyLosingInventory runs the real inventory services and drops the
// reply of the first confirmDrops confirmations after they commit.
type replyLosingInventory struct {
	products     *product.Service
	reservations *inventory.Service
	confirmDrops int
}

func (l *replyLosingInventory) GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	return l.products.GetProductPrice(ctx, productID)
}

func (l *replyLosingInventory) CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (order.Reservation, error) {
	r, err := l.reservations.CreateReservation(ctx, productID, quantity, ttl)
	if err != nil {
		return order.Reservation{}, err
	}
	return order.Reservation{ID: r.ID, ExpiresAt: r.ExpiresAt}, nil
}

func (l *replyLosingInventory) ConfirmReservations(ctx context.Context, ids []string) error {
	if err := l.reservations.ConfirmReservations(ctx, ids); err != nil {
		return err
	}
	if l.confirmDrops > 0 {
		l.confirmDrops--
		return order.ErrInventoryUnavailable
	}
	return nil
}

func TestPlace_ConfirmCommittedButReplyLost(t *testing.T) {
	stock := mocks.NewMemoryStore()
	p, err := product.Create("Widget", decimal.NewFromInt(10), 20, "admin-1")
	require.NoError(t, err)
	stock.Seed(p)

	inv := &replyLosingInventory{
		products:     product.NewService(stock.BeginProducts, zap.NewNop()),
		reservations: inventory.NewService(stock.BeginInventory, zap.NewNop()),
		confirmDrops: 1,
	}
	orders := mocks.NewMemoryStore()
	svc := order.NewService(orders.BeginOrders, inv, zap.NewNop(), time.Minute)

	o, err := svc.Place(context.Background(), "customer-1",
		[]order.LineRequest{{ProductID: p.ID, Quantity: 5}}, "customer-1")

	// The second confirm finds the batch already applied.
	require.NoError(t, err)
	stored, _ := orders.Order(o.ID)
	assert.Equal(t, order.StatusSubmitted, stored.Status)
	prod, _ := stock.Product(p.ID)
	assert.Equal(t, 15, prod.Quantity)
}
