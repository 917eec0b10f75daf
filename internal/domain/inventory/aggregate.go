package inventory

import (
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/google/uuid"
)

const AggregateType = "ProductReservation"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
)

// MaxReservationTTL bounds how long a single hold may last.
const MaxReservationTTL = 24 * time.Hour

var (
	ErrReservationNotFound = fmt.Errorf("%w: reservation not found", aggregate.ErrNotFound)
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be positive", aggregate.ErrValidation)
	ErrInvalidTTL          = fmt.Errorf("%w: ttl must be positive and at most %s", aggregate.ErrValidation, MaxReservationTTL)
	ErrInvalidID           = fmt.Errorf("%w: malformed reservation id", aggregate.ErrValidation)
	ErrAlreadyConfirmed    = fmt.Errorf("%w: reservation already confirmed", aggregate.ErrConflict)
	ErrReservationExpired  = fmt.Errorf("%w: reservation expired", aggregate.ErrConflict)
	ErrProductMismatch     = fmt.Errorf("%w: reservation belongs to another product", aggregate.ErrInvariant)
	ErrInsufficientStock   = fmt.Errorf("%w: insufficient available stock", aggregate.ErrExhausted)
	ErrInvalidState        = fmt.Errorf("%w: reservation state is invalid", aggregate.ErrInvariant)
)

// Reservation holds stock for an order without touching the product row
// until it is confirmed.
type Reservation struct {
	aggregate.Root
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Reservation) AggregateType() string { return AggregateType }

func (r *Reservation) When(e Event) { e.applyTo(r) }

func (r *Reservation) EnsureValidState() error {
	switch {
	case r.ProductID == "":
		return fmt.Errorf("%w: missing product id", ErrInvalidState)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: non-positive quantity", ErrInvalidState)
	case r.Status != StatusPending && r.Status != StatusConfirmed && r.Status != StatusExpired:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, r.Status)
	}
	return nil
}

func (r *Reservation) apply(e Event) error {
	return aggregate.Apply[Event](r, e)
}

// NewReservation creates a Pending reservation that expires ttl after now.
func NewReservation(productID string, quantity int, ttl time.Duration, now time.Time) (*Reservation, error) {
	if err := product.ValidateID(productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ttl <= 0 || ttl > MaxReservationTTL {
		return nil, ErrInvalidTTL
	}

	r := &Reservation{}
	err := r.apply(&ReservationCreated{
		EventHeader: aggregate.NewHeader(uuid.New().String(), "", now),
		ProductID:   productID,
		Quantity:    quantity,
		ExpiresAt:   now.Add(ttl).UTC(),
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// IsExpiredAt reports whether the reservation can no longer be confirmed at now.
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return r.Status == StatusExpired || (r.Status == StatusPending && now.After(r.ExpiresAt))
}

// Confirm moves a Pending reservation to Confirmed. It does not touch
// product stock; see ConfirmReservation.
func (r *Reservation) Confirm(now time.Time) error {
	if r.Status == StatusConfirmed {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, r.ID)
	}
	if r.IsExpiredAt(now) {
		return fmt.Errorf("%w: %s expired at %s", ErrReservationExpired, r.ID, r.ExpiresAt.Format(time.RFC3339))
	}

	return r.apply(&ReservationConfirmed{
		EventHeader: aggregate.NewHeader(r.ID, "", now),
		ProductID:   r.ProductID,
		Quantity:    r.Quantity,
	})
}

// MarkExpired releases the hold. It is a no-op unless the reservation is
// still Pending.
func (r *Reservation) MarkExpired(now time.Time) error {
	if r.Status != StatusPending {
		return nil
	}
	return r.apply(&ReservationExpired{
		EventHeader: aggregate.NewHeader(r.ID, "", now),
		ProductID:   r.ProductID,
		Quantity:    r.Quantity,
	})
}
