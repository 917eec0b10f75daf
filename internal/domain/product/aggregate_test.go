package product

import (
	"testing"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProduct(t *testing.T, quantity int) *Product {
	t.Helper()
	p, err := Create("Widget", decimal.NewFromInt(10), quantity, "admin-1")
	require.NoError(t, err)
	return p
}

// ============================================
// Create Tests
// ============================================

func TestCreate_Success(t *testing.T) {
	p, err := Create("  Widget  ", decimal.RequireFromString("9.99"), 20, "admin-1")

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Widget", p.Name)
	assert.True(t, decimal.RequireFromString("9.99").Equal(p.Price))
	assert.Equal(t, 20, p.Quantity)
	assert.Equal(t, "admin-1", p.CreatedBy)
	assert.Equal(t, "admin-1", p.UpdatedBy)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	assert.Equal(t, 1, p.Version)

	events := p.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventProductCreated, events[0].EventType())
	assert.Equal(t, p.ID, events[0].Header().SourceID)
}

func TestCreate_KeepsSubCentPrice(t *testing.T) {
	price := decimal.RequireFromString("9.995")

	p, err := Create("Bolt", price, 1, "admin-1")

	require.NoError(t, err)
	assert.Equal(t, "9.995", p.Price.String())
	created := p.PendingEvents()[0].(*ProductCreated)
	assert.True(t, price.Equal(created.Price))
}

func TestCreate_ZeroPriceAndQuantity(t *testing.T) {
	p, err := Create("Freebie", decimal.Zero, 0, "")

	require.NoError(t, err)
	assert.Equal(t, 0, p.Quantity)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		pName    string
		price    decimal.Decimal
		quantity int
		wantErr  error
	}{
		{"blank name", "   ", decimal.NewFromInt(1), 1, ErrInvalidName},
		{"negative price", "Widget", decimal.NewFromInt(-1), 1, ErrInvalidPrice},
		{"negative quantity", "Widget", decimal.NewFromInt(1), -1, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Create(tt.pName, tt.price, tt.quantity, "")

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, aggregate.ErrValidation)
			assert.Nil(t, p)
		})
	}
}

// ============================================
// AdjustQuantity Tests
// ============================================

func TestProduct_AdjustQuantity_Deduct(t *testing.T) {
	p := newTestProduct(t, 20)

	err := p.AdjustQuantity(-5, "")

	require.NoError(t, err)
	assert.Equal(t, 15, p.Quantity)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, "admin-1", p.UpdatedBy)
}

func TestProduct_AdjustQuantity_Underflow_LeavesQuantityUnchanged(t *testing.T) {
	p := newTestProduct(t, 2)

	err := p.AdjustQuantity(-3, "")

	assert.ErrorIs(t, err, ErrStockUnderflow)
	assert.ErrorIs(t, err, aggregate.ErrExhausted)
	assert.Equal(t, 2, p.Quantity)
	assert.Equal(t, 1, p.Version)
	assert.Len(t, p.PendingEvents(), 1)
}

func TestProduct_AdjustQuantity_ToZero(t *testing.T) {
	p := newTestProduct(t, 3)

	require.NoError(t, p.AdjustQuantity(-3, ""))

	assert.Equal(t, 0, p.Quantity)
}

func TestProduct_AdjustQuantity_Restock(t *testing.T) {
	p := newTestProduct(t, 1)

	require.NoError(t, p.AdjustQuantity(9, "warehouse"))

	assert.Equal(t, 10, p.Quantity)
	assert.Equal(t, "warehouse", p.UpdatedBy)
	last := p.PendingEvents()[1].(*ProductQuantityAdjusted)
	assert.Equal(t, 9, last.Delta)
	assert.Equal(t, 10, last.NewQuantity)
	assert.Equal(t, 2, last.Version)
}

// ============================================
// ChangePrice Tests
// ============================================

func TestProduct_ChangePrice(t *testing.T) {
	p := newTestProduct(t, 1)

	err := p.ChangePrice(decimal.NewFromInt(12), "pricing")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(p.Price))
	ev := p.PendingEvents()[1].(*ProductPriceChanged)
	assert.True(t, decimal.NewFromInt(10).Equal(ev.OldPrice))
}

func TestProduct_ChangePrice_Negative(t *testing.T) {
	p := newTestProduct(t, 1)

	err := p.ChangePrice(decimal.NewFromInt(-1), "")

	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.True(t, decimal.NewFromInt(10).Equal(p.Price))
	assert.Equal(t, 1, p.Version)
}

// ============================================
// Invariant Tests
// ============================================

func TestProduct_EnsureValidState(t *testing.T) {
	p := newTestProduct(t, 1)
	assert.NoError(t, p.EnsureValidState())

	p.Quantity = -1
	assert.ErrorIs(t, p.EnsureValidState(), aggregate.ErrInvariant)
}

// ============================================
// ListFilter Tests
// ============================================

func TestListFilter_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListFilter
		want ListFilter
	}{
		{"defaults", ListFilter{}, ListFilter{Page: 1, PageSize: DefaultPageSize, SortBy: SortByName}},
		{"clamps page size", ListFilter{Page: 3, PageSize: 500}, ListFilter{Page: 3, PageSize: MaxPageSize, SortBy: SortByName}},
		{"case-insensitive sort", ListFilter{SortBy: "Price", Desc: true}, ListFilter{Page: 1, PageSize: DefaultPageSize, SortBy: SortByPrice, Desc: true}},
		{"unknown sort", ListFilter{SortBy: "color"}, ListFilter{Page: 1, PageSize: DefaultPageSize, SortBy: SortByName}},
		{"trims search", ListFilter{Search: " wid "}, ListFilter{Search: "wid", Page: 1, PageSize: DefaultPageSize, SortBy: SortByName}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestListFilter_Offset(t *testing.T) {
	f := ListFilter{Page: 3, PageSize: 20}

	assert.Equal(t, 40, f.Offset())
}
