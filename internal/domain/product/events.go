package product

import (
	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/shopspring/decimal"
)

const (
	EventProductCreated          = "ProductCreated"
	EventProductPriceChanged     = "ProductPriceChanged"
	EventProductQuantityAdjusted = "ProductQuantityAdjusted"
)

// Event is the closed set of events a Product applies.
type Event interface {
	aggregate.Event
	applyTo(p *Product)
}

type ProductCreated struct {
	aggregate.EventHeader
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (e *ProductCreated) EventType() string { return EventProductCreated }

func (e *ProductCreated) applyTo(p *Product) {
	p.Name = e.Name
	p.Price = e.Price
	p.Quantity = e.Quantity
	p.CreatedAt = e.Timestamp
	p.CreatedBy = e.PerformedBy
}

type ProductPriceChanged struct {
	aggregate.EventHeader
	OldPrice decimal.Decimal `json:"old_price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

func (e *ProductPriceChanged) EventType() string { return EventProductPriceChanged }

func (e *ProductPriceChanged) applyTo(p *Product) {
	p.Price = e.NewPrice
}

type ProductQuantityAdjusted struct {
	aggregate.EventHeader
	Delta       int `json:"delta"`
	NewQuantity int `json:"new_quantity"`
}

func (e *ProductQuantityAdjusted) EventType() string { return EventProductQuantityAdjusted }

func (e *ProductQuantityAdjusted) applyTo(p *Product) {
	p.Quantity = e.NewQuantity
}
