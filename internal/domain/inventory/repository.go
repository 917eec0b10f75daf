package inventory

import (
	"context"
	"time"

	"github.com/example/stock-reservation/internal/domain/product"
)

type Repository interface {
	Load(ctx context.Context, id string) (*Reservation, error)
	Add(ctx context.Context, r *Reservation) error
	Update(ctx context.Context, r *Reservation, expectedVersion int) error
	Delete(ctx context.Context, id string) error
	// SumPendingQuantity totals Pending reservations for productID that
	// have not expired at now.
	SumPendingQuantity(ctx context.Context, productID string, now time.Time) (int, error)
	// ListExpiredPending returns up to max Pending reservations whose
	// expiry is before now, soonest expired first.
	ListExpiredPending(ctx context.Context, max int, now time.Time) ([]*Reservation, error)
}

type UnitOfWork interface {
	Products() product.Repository
	Reservations() Repository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type BeginFunc func(ctx context.Context) (UnitOfWork, error)
