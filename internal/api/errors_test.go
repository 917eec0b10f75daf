package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/stretchr/testify/assert"
)

func TestErrorReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"specific not found", fmt.Errorf("load: %w", product.ErrProductNotFound), http.StatusNotFound, "product_not_found"},
		{"exhausted", inventory.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"version conflict", aggregate.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{"order state", order.ErrOrderCancelled, http.StatusConflict, "order_cancelled"},
		{"kind fallback", fmt.Errorf("%w: bad input", aggregate.ErrValidation), http.StatusBadRequest, ReasonInvalidArgument},
		{"invariant", fmt.Errorf("%w: broken", aggregate.ErrInvariant), http.StatusConflict, ReasonInvariant},
		{"remote refusal", fmt.Errorf("inventory: forbidden: %w", order.ErrInventoryRefused), http.StatusBadGateway, "inventory_refused"},
		{"remote unavailable", fmt.Errorf("%w: timeout", order.ErrInventoryUnavailable), http.StatusServiceUnavailable, "inventory_unavailable"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := ErrorReason(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestReasonError(t *testing.T) {
	assert.ErrorIs(t, ReasonError("insufficient_stock"), inventory.ErrInsufficientStock)
	assert.ErrorIs(t, ReasonError("reservation_expired"), aggregate.ErrConflict)
	assert.ErrorIs(t, ReasonError(ReasonNotFound), aggregate.ErrNotFound)
	assert.Nil(t, ReasonError("no_such_reason"))
	assert.Nil(t, ReasonError(ReasonInternal))
}
