package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Load(ctx context.Context, id string) (*Order, error)
	Add(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

type UnitOfWork interface {
	Orders() Repository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type BeginFunc func(ctx context.Context) (UnitOfWork, error)

var (
	// ErrInventoryUnavailable means the outcome of a protocol call is
	// unknown: the inventory side may or may not have applied it.
	ErrInventoryUnavailable = errors.New("inventory service unavailable")
	// ErrInventoryRefused means the inventory side answered and did not
	// apply the request.
	ErrInventoryRefused = errors.New("inventory refused the request")
)

// Reservation is the inventory side's answer to a reservation request.
type Reservation struct {
	ID        string    `json:"reservation_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Inventory is the remote reservation protocol as seen by the order side.
// A ttl of zero asks for the inventory default.
type Inventory interface {
	GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (Reservation, error)
	ConfirmReservations(ctx context.Context, reservationIDs []string) error
}
