package inventory

import (
	"testing"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestReservation(t *testing.T, productID string, quantity int) *Reservation {
	t.Helper()
	r, err := NewReservation(productID, quantity, 5*time.Minute, testNow)
	require.NoError(t, err)
	return r
}

func newTestProduct(t *testing.T, quantity int) *product.Product {
	t.Helper()
	p, err := product.Create("Widget", decimal.NewFromInt(10), quantity, "")
	require.NoError(t, err)
	p.ClearEvents()
	return p
}

// ============================================
// NewReservation Tests
// ============================================

func TestNewReservation_Success(t *testing.T) {
	productID := uuid.New().String()

	r, err := NewReservation(productID, 5, 5*time.Minute, testNow)

	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, productID, r.ProductID)
	assert.Equal(t, 5, r.Quantity)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, testNow.Add(5*time.Minute), r.ExpiresAt)
	assert.Equal(t, testNow, r.CreatedAt)
	assert.Equal(t, 1, r.Version)
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, EventReservationCreated, r.PendingEvents()[0].EventType())
}

func TestNewReservation_Validation(t *testing.T) {
	productID := uuid.New().String()

	tests := []struct {
		name      string
		productID string
		quantity  int
		ttl       time.Duration
		wantErr   error
	}{
		{"zero quantity", productID, 0, time.Minute, ErrInvalidQuantity},
		{"negative quantity", productID, -1, time.Minute, ErrInvalidQuantity},
		{"malformed product id", "not-a-uuid", 1, time.Minute, product.ErrInvalidID},
		{"zero ttl", productID, 1, 0, ErrInvalidTTL},
		{"ttl beyond a day", productID, 1, MaxReservationTTL + time.Second, ErrInvalidTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReservation(tt.productID, tt.quantity, tt.ttl, testNow)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, aggregate.ErrValidation)
			assert.Nil(t, r)
		})
	}
}

// ============================================
// State Machine Tests
// ============================================

func TestReservation_Confirm(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)

	err := r.Confirm(testNow.Add(time.Minute))

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, 2, r.Version)
}

func TestReservation_Confirm_Twice(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)
	require.NoError(t, r.Confirm(testNow))

	err := r.Confirm(testNow)

	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.ErrorIs(t, err, aggregate.ErrConflict)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, 2, r.Version)
}

func TestReservation_Confirm_PastExpiryWhilePending(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)

	err := r.Confirm(testNow.Add(6 * time.Minute))

	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, 1, r.Version)
}

func TestReservation_Confirm_AtExactExpiry(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)

	err := r.Confirm(r.ExpiresAt)

	assert.NoError(t, err)
}

func TestReservation_Confirm_AfterMarkExpired(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)
	require.NoError(t, r.MarkExpired(testNow))

	err := r.Confirm(testNow)

	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Equal(t, StatusExpired, r.Status)
}

func TestReservation_MarkExpired(t *testing.T) {
	r := newTestReservation(t, uuid.New().String(), 5)

	err := r.MarkExpired(testNow.Add(10 * time.Minute))

	require.NoError(t, err)
	assert.Equal(t, StatusExpired, r.Status)
	assert.Equal(t, 2, r.Version)
	assert.Equal(t, EventReservationExpired, r.PendingEvents()[1].EventType())
}

func TestReservation_MarkExpired_NoopWhenNotPending(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Reservation)
		want  Status
	}{
		{"confirmed", func(r *Reservation) { require.NoError(t, r.Confirm(testNow)) }, StatusConfirmed},
		{"expired", func(r *Reservation) { require.NoError(t, r.MarkExpired(testNow)) }, StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReservation(t, uuid.New().String(), 5)
			tt.setup(r)
			version := r.Version

			err := r.MarkExpired(testNow.Add(time.Hour))

			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, version, r.Version)
		})
	}
}

// ============================================
// ConfirmReservation Tests
// ============================================

func TestConfirmReservation_DeductsStock(t *testing.T) {
	p := newTestProduct(t, 20)
	r := newTestReservation(t, p.ID, 5)

	err := ConfirmReservation(r, p, testNow)

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, 15, p.Quantity)
}

func TestConfirmReservation_SecondAttemptDoesNotDoubleDeduct(t *testing.T) {
	p := newTestProduct(t, 20)
	r := newTestReservation(t, p.ID, 5)
	require.NoError(t, ConfirmReservation(r, p, testNow))

	err := ConfirmReservation(r, p, testNow)

	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, 15, p.Quantity)
}

func TestConfirmReservation_Expired_LeavesBothUntouched(t *testing.T) {
	p := newTestProduct(t, 20)
	r := newTestReservation(t, p.ID, 5)

	err := ConfirmReservation(r, p, testNow.Add(time.Hour))

	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, 20, p.Quantity)
	assert.Empty(t, p.PendingEvents())
}

func TestConfirmReservation_InsufficientStock(t *testing.T) {
	p := newTestProduct(t, 3)
	r := newTestReservation(t, p.ID, 5)

	err := ConfirmReservation(r, p, testNow)

	assert.ErrorIs(t, err, product.ErrStockUnderflow)
	assert.ErrorIs(t, err, aggregate.ErrExhausted)
	assert.Equal(t, 3, p.Quantity)
	// The reservation flipped in memory; the caller must not commit it.
	assert.Equal(t, StatusConfirmed, r.Status)
}

func TestConfirmReservation_ProductMismatch(t *testing.T) {
	p := newTestProduct(t, 20)
	r := newTestReservation(t, uuid.New().String(), 5)

	err := ConfirmReservation(r, p, testNow)

	assert.ErrorIs(t, err, ErrProductMismatch)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, 20, p.Quantity)
}
