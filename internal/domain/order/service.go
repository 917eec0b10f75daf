package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CancelReasonConfirmationFailed = "stock confirmation failed"
	systemActor                    = "system"
)

type LineRequest struct {
	ProductID string
	Quantity  int
}

// Service places and maintains orders. Stock is held through the
// Inventory protocol: lines are reserved before the order is committed and
// the reservations are confirmed after.
type Service struct {
	begin          BeginFunc
	inventory      Inventory
	reservationTTL time.Duration
	logger         *zap.Logger
}

func NewService(begin BeginFunc, inventory Inventory, logger *zap.Logger, reservationTTL time.Duration) *Service {
	return &Service{
		begin:          begin,
		inventory:      inventory,
		reservationTTL: reservationTTL,
		logger:         logger.Named("order"),
	}
}

func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit(ctx)
}

// Place prices and reserves every line, commits the order and then
// confirms the reservations. If inventory refuses the confirmation the order
// is cancelled. If the outcome is unknown the order stays submitted.
func (s *Service) Place(ctx context.Context, customerID string, lines []LineRequest, createdBy string) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, ErrCustomerRequired
	}
	if len(lines) == 0 {
		return nil, ErrLinesRequired
	}

	inputs, reservationIDs, err := s.reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	o, err := Create(customerID, inputs, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.inTx(ctx, func(uow UnitOfWork) error {
		return uow.Orders().Add(ctx, o)
	}); err != nil {
		return nil, err
	}

	if err := s.confirm(ctx, o.ID, reservationIDs); err != nil {
		if refused(err) {
			s.compensate(ctx, o.ID, func(o *Order) error {
				return o.Cancel(CancelReasonConfirmationFailed, systemActor)
			})
		}
		return nil, fmt.Errorf("confirm reservations for order %s: %w", o.ID, err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", customerID),
		zap.String("total", o.Total.String()),
		zap.Int("lines", len(o.Lines)),
	)
	return o, nil
}

// reserve fetches the current price and creates a reservation for each
// line. Reservations made before a failure are left to expire.
func (s *Service) reserve(ctx context.Context, lines []LineRequest) ([]LineInput, []string, error) {
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" || l.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i)
		}
	}

	inputs := make([]LineInput, 0, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		price, err := s.inventory.GetProductPrice(ctx, l.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("price product %s: %w", l.ProductID, err)
		}

		r, err := s.inventory.CreateReservation(ctx, l.ProductID, l.Quantity, s.reservationTTL)
		if err != nil {
			if len(ids) > 0 {
				s.logger.Warn("abandoning reservations after failed reserve",
					zap.Strings("reservation_ids", ids),
					zap.Error(err),
				)
			}
			return nil, nil, fmt.Errorf("reserve product %s: %w", l.ProductID, err)
		}

		inputs = append(inputs, LineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price})
		ids = append(ids, r.ID)
	}
	return inputs, ids, nil
}

// confirm confirms the reservations of an order, asking once more when the
// first outcome is unknown. Confirmation is all or nothing, so an
// already-confirmed answer to the second call means the first one landed.
func (s *Service) confirm(ctx context.Context, orderID string, reservationIDs []string) error {
	err := s.inventory.ConfirmReservations(ctx, reservationIDs)
	if errors.Is(err, ErrInventoryUnavailable) && ctx.Err() == nil {
		err = s.inventory.ConfirmReservations(ctx, reservationIDs)
		if errors.Is(err, inventory.ErrAlreadyConfirmed) {
			return nil
		}
	}
	if err != nil && !refused(err) {
		s.logger.Error("reservation confirmation outcome unknown, order left submitted",
			zap.String("order_id", orderID),
			zap.Strings("reservation_ids", reservationIDs),
			zap.Error(err),
		)
	}
	return err
}

// refused reports whether the inventory side definitely did not apply a
// confirmation. Only then is it safe to compensate the order.
func refused(err error) bool {
	if errors.Is(err, ErrInventoryUnavailable) {
		return false
	}
	return errors.Is(err, ErrInventoryRefused) ||
		errors.Is(err, aggregate.ErrConflict) ||
		errors.Is(err, aggregate.ErrExhausted) ||
		errors.Is(err, aggregate.ErrNotFound) ||
		errors.Is(err, aggregate.ErrValidation)
}

// compensate applies change to the committed order with a context that
// outlives the caller's cancellation. Failures are logged only.
func (s *Service) compensate(ctx context.Context, orderID string, change func(o *Order) error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.mutate(ctx, orderID, change); err != nil {
		s.logger.Error("order compensation failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	s.logger.Warn("order compensated after confirmation failure", zap.String("order_id", orderID))
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var o *Order
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		o, err = uow.Orders().Load(ctx, id)
		return err
	})
	return o, err
}

// AddLines reserves stock for the new lines and appends them. If inventory
// refuses the confirmation the lines are removed again.
func (s *Service) AddLines(ctx context.Context, orderID string, lines []LineRequest, performedBy string) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrLinesRequired
	}
	current, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusSubmitted {
		return nil, ErrOrderNotModifiable
	}

	inputs, reservationIDs, err := s.reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	var added []string
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		before := len(o.Lines)
		if err := o.AddLines(inputs, performedBy); err != nil {
			return err
		}
		for _, l := range o.Lines[before:] {
			added = append(added, l.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.confirm(ctx, orderID, reservationIDs); err != nil {
		if !refused(err) {
			return nil, fmt.Errorf("confirm reservations for order %s: %w", orderID, err)
		}
		s.compensate(ctx, orderID, func(o *Order) error {
			for _, id := range added {
				if err := o.RemoveLine(id, systemActor); err != nil {
					return err
				}
			}
			return nil
		})
		return nil, fmt.Errorf("confirm reservations for order %s: %w", orderID, err)
	}
	return o, nil
}

func (s *Service) RemoveLine(ctx context.Context, orderID, lineID, performedBy string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) error {
		return o.RemoveLine(lineID, performedBy)
	})
}

func (s *Service) Pay(ctx context.Context, orderID, performedBy string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) error {
		return o.Pay(performedBy)
	})
}

func (s *Service) Cancel(ctx context.Context, orderID, reason, performedBy string) (*Order, error) {
	return s.mutate(ctx, orderID, func(o *Order) error {
		return o.Cancel(reason, performedBy)
	})
}

func (s *Service) mutate(ctx context.Context, orderID string, change func(o *Order) error) (*Order, error) {
	if err := validateID(orderID); err != nil {
		return nil, err
	}

	var o *Order
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		o, err = uow.Orders().Load(ctx, orderID)
		if err != nil {
			return err
		}
		if err := change(o); err != nil {
			return err
		}
		return uow.Orders().Update(ctx, o, o.PersistedVersion())
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}
