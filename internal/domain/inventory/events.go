package inventory

import (
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
)

const (
	EventReservationCreated   = "ProductReservationCreated"
	EventReservationConfirmed = "ProductReservationConfirmed"
	EventReservationExpired   = "ProductReservationExpired"
)

// Event is the closed set of events a Reservation applies.
type Event interface {
	aggregate.Event
	applyTo(r *Reservation)
}

type ReservationCreated struct {
	aggregate.EventHeader
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *ReservationCreated) EventType() string { return EventReservationCreated }

func (e *ReservationCreated) applyTo(r *Reservation) {
	r.ProductID = e.ProductID
	r.Quantity = e.Quantity
	r.ExpiresAt = e.ExpiresAt
	r.CreatedAt = e.Timestamp
	r.Status = StatusPending
}

type ReservationConfirmed struct {
	aggregate.EventHeader
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (e *ReservationConfirmed) EventType() string { return EventReservationConfirmed }

func (e *ReservationConfirmed) applyTo(r *Reservation) {
	r.Status = StatusConfirmed
}

type ReservationExpired struct {
	aggregate.EventHeader
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (e *ReservationExpired) EventType() string { return EventReservationExpired }

func (e *ReservationExpired) applyTo(r *Reservation) {
	r.Status = StatusExpired
}
