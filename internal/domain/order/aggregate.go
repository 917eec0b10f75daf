package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound      = fmt.Errorf("%w: order not found", aggregate.ErrNotFound)
	ErrLineNotFound       = fmt.Errorf("%w: order line not found", aggregate.ErrNotFound)
	ErrCustomerRequired   = fmt.Errorf("%w: customer id is required", aggregate.ErrValidation)
	ErrLinesRequired      = fmt.Errorf("%w: at least one line is required", aggregate.ErrValidation)
	ErrInvalidLine        = fmt.Errorf("%w: invalid order line", aggregate.ErrValidation)
	ErrInvalidID          = fmt.Errorf("%w: malformed order id", aggregate.ErrValidation)
	ErrEmptyOrder         = fmt.Errorf("%w: order must have at least one line", aggregate.ErrInvariant)
	ErrNegativeTotal      = fmt.Errorf("%w: order total must not be negative", aggregate.ErrInvariant)
	ErrMissingCustomer    = fmt.Errorf("%w: order has no customer", aggregate.ErrInvariant)
	ErrInvalidStatus      = fmt.Errorf("%w: invalid order status transition", aggregate.ErrConflict)
	ErrOrderAlreadyPaid   = fmt.Errorf("%w: order is already paid", aggregate.ErrConflict)
	ErrOrderCancelled     = fmt.Errorf("%w: order is already cancelled", aggregate.ErrConflict)
	ErrOrderNotModifiable = fmt.Errorf("%w: order lines can only change while submitted", aggregate.ErrConflict)
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusCancelled},
	StatusCancelled: {}, // terminal state
}

type Line struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineInput describes a line to add; the order assigns its id.
type LineInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Order struct {
	aggregate.Root
	aggregate.ModificationInfo
	CustomerID   string          `json:"customer_id"`
	Status       Status          `json:"status"`
	Lines        []Line          `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

func (o *Order) AggregateType() string { return AggregateType }

func (o *Order) When(e Event) { e.applyTo(o) }

func (o *Order) EnsureValidState() error {
	switch {
	case o.CustomerID == "":
		return ErrMissingCustomer
	case len(o.Lines) == 0:
		return ErrEmptyOrder
	case o.Total.IsNegative():
		return ErrNegativeTotal
	}
	return nil
}

func (o *Order) apply(e Event) error {
	return aggregate.Apply[Event](o, e)
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	status := o.Status
	if status == "" {
		status = StatusDraft
	}
	for _, s := range validTransitions[status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusPaid && target == StatusPaid:
		return ErrOrderAlreadyPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

func buildLines(inputs []LineInput) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(inputs))
	sum := decimal.Zero
	for i, in := range inputs {
		switch {
		case strings.TrimSpace(in.ProductID) == "":
			return nil, decimal.Zero, fmt.Errorf("%w: line %d has no product", ErrInvalidLine, i)
		case in.Quantity <= 0:
			return nil, decimal.Zero, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, i)
		case in.UnitPrice.IsNegative():
			return nil, decimal.Zero, fmt.Errorf("%w: line %d unit price is negative", ErrInvalidLine, i)
		}
		l := Line{
			ID:        uuid.New().String(),
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		}
		lines = append(lines, l)
		sum = sum.Add(l.Subtotal())
	}
	return lines, sum, nil
}

// Create submits a new order. An order without lines fails the invariant
// check and is never returned.
func Create(customerID string, inputs []LineInput, createdBy string) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, ErrCustomerRequired
	}
	lines, total, err := buildLines(inputs)
	if err != nil {
		return nil, err
	}

	o := &Order{}
	err = o.apply(&OrderCreated{
		EventHeader: aggregate.NewHeader(uuid.New().String(), createdBy, time.Now()),
		CustomerID:  customerID,
		Lines:       lines,
		Total:       total,
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Order) AddLines(inputs []LineInput, performedBy string) error {
	if o.Status != StatusSubmitted {
		return ErrOrderNotModifiable
	}
	if len(inputs) == 0 {
		return ErrLinesRequired
	}
	lines, added, err := buildLines(inputs)
	if err != nil {
		return err
	}

	return o.apply(&OrderLinesAdded{
		EventHeader: aggregate.NewHeader(o.ID, performedBy, time.Now()),
		Lines:       lines,
		Total:       o.Total.Add(added),
	})
}

// RemoveLine drops a line. Removing the last line violates the invariant;
// the returned error means the order must be discarded.
func (o *Order) RemoveLine(lineID, performedBy string) error {
	if o.Status != StatusSubmitted {
		return ErrOrderNotModifiable
	}
	line, ok := o.Line(lineID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}

	return o.apply(&OrderLineRemoved{
		EventHeader: aggregate.NewHeader(o.ID, performedBy, time.Now()),
		LineID:      lineID,
		Total:       o.Total.Sub(line.Subtotal()),
	})
}

func (o *Order) Line(lineID string) (Line, bool) {
	for _, l := range o.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return Line{}, false
}

func (o *Order) Pay(performedBy string) error {
	if !o.CanTransitionTo(StatusPaid) {
		return o.transitionError(StatusPaid)
	}
	return o.apply(&OrderPaid{
		EventHeader: aggregate.NewHeader(o.ID, performedBy, time.Now()),
	})
}

func (o *Order) Cancel(reason, performedBy string) error {
	if !o.CanTransitionTo(StatusCancelled) {
		return o.transitionError(StatusCancelled)
	}
	return o.apply(&OrderCancelled{
		EventHeader: aggregate.NewHeader(o.ID, performedBy, time.Now()),
		Reason:      reason,
	})
}
