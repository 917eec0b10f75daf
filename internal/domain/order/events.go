package order

import (
	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderLinesAdded  = "OrderLinesAdded"
	EventOrderLineRemoved = "OrderLineRemoved"
	EventOrderPaid        = "OrderPaid"
	EventOrderCancelled   = "OrderCancelled"
)

// Event is the closed set of events an Order applies.
type Event interface {
	aggregate.Event
	applyTo(o *Order)
}

type OrderCreated struct {
	aggregate.EventHeader
	CustomerID string          `json:"customer_id"`
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
}

func (e *OrderCreated) EventType() string { return EventOrderCreated }

func (e *OrderCreated) applyTo(o *Order) {
	o.CustomerID = e.CustomerID
	o.Lines = append([]Line(nil), e.Lines...)
	o.Total = e.Total
	o.Status = StatusSubmitted
	o.CreatedAt = e.Timestamp
	o.CreatedBy = e.PerformedBy
}

type OrderLinesAdded struct {
	aggregate.EventHeader
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func (e *OrderLinesAdded) EventType() string { return EventOrderLinesAdded }

func (e *OrderLinesAdded) applyTo(o *Order) {
	o.Lines = append(o.Lines, e.Lines...)
	o.Total = e.Total
}

type OrderLineRemoved struct {
	aggregate.EventHeader
	LineID string          `json:"line_id"`
	Total  decimal.Decimal `json:"total"`
}

func (e *OrderLineRemoved) EventType() string { return EventOrderLineRemoved }

func (e *OrderLineRemoved) applyTo(o *Order) {
	kept := o.Lines[:0:0]
	for _, l := range o.Lines {
		if l.ID != e.LineID {
			kept = append(kept, l)
		}
	}
	o.Lines = kept
	o.Total = e.Total
}

type OrderPaid struct {
	aggregate.EventHeader
}

func (e *OrderPaid) EventType() string { return EventOrderPaid }

func (e *OrderPaid) applyTo(o *Order) {
	o.Status = StatusPaid
}

type OrderCancelled struct {
	aggregate.EventHeader
	Reason string `json:"reason"`
}

func (e *OrderCancelled) EventType() string { return EventOrderCancelled }

func (e *OrderCancelled) applyTo(o *Order) {
	o.Status = StatusCancelled
	o.CancelReason = e.Reason
}
