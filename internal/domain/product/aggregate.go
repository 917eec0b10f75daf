package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Product"

var (
	ErrProductNotFound = fmt.Errorf("%w: product not found", aggregate.ErrNotFound)
	ErrInvalidName     = fmt.Errorf("%w: name is required", aggregate.ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("%w: price must not be negative", aggregate.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must not be negative", aggregate.ErrValidation)
	ErrInvalidID       = fmt.Errorf("%w: malformed product id", aggregate.ErrValidation)
	ErrStockUnderflow  = fmt.Errorf("%w: insufficient stock", aggregate.ErrExhausted)
	ErrInvalidState    = fmt.Errorf("%w: product state is invalid", aggregate.ErrInvariant)
	ErrProductInUse    = fmt.Errorf("%w: product has reservations", aggregate.ErrConflict)
)

type Product struct {
	aggregate.Root
	aggregate.ModificationInfo
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by,omitempty"`
}

func (p *Product) AggregateType() string { return AggregateType }

func (p *Product) When(e Event) { e.applyTo(p) }

func (p *Product) EnsureValidState() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidState)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: negative price", ErrInvalidState)
	case p.Quantity < 0:
		return fmt.Errorf("%w: negative quantity", ErrInvalidState)
	}
	return nil
}

func (p *Product) apply(e Event) error {
	return aggregate.Apply[Event](p, e)
}

// Create registers a new product with its initial stock.
func Create(name string, price decimal.Decimal, quantity int, createdBy string) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	p := &Product{}
	err := p.apply(&ProductCreated{
		EventHeader: aggregate.NewHeader(uuid.New().String(), createdBy, time.Now()),
		Name:        strings.TrimSpace(name),
		Price:       price,
		Quantity:    quantity,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Product) ChangePrice(newPrice decimal.Decimal, performedBy string) error {
	if newPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return p.apply(&ProductPriceChanged{
		EventHeader: aggregate.NewHeader(p.ID, performedBy, time.Now()),
		OldPrice:    p.Price,
		NewPrice:    newPrice,
	})
}

// AdjustQuantity applies a signed stock delta. A delta that would drive the
// quantity below zero fails with ErrStockUnderflow and leaves the product
// unchanged.
func (p *Product) AdjustQuantity(delta int, performedBy string) error {
	next := p.Quantity + delta
	if next < 0 {
		return fmt.Errorf("%w: have %d, adjust by %d", ErrStockUnderflow, p.Quantity, delta)
	}
	return p.apply(&ProductQuantityAdjusted{
		EventHeader: aggregate.NewHeader(p.ID, performedBy, time.Now()),
		Delta:       delta,
		NewQuantity: next,
	})
}
