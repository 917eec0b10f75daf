package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/product"
	"go.uber.org/zap"
)

const (
	DefaultReservationTTL     = 300 * time.Second
	DefaultMaxConfirmAttempts = 3
)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 && ttl <= MaxReservationTTL {
			s.defaultTTL = ttl
		}
	}
}

func WithMaxConfirmAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConfirmAttempts = n
		}
	}
}

// Service implements the inventory side of the reservation protocol.
type Service struct {
	begin              BeginFunc
	logger             *zap.Logger
	now                func() time.Time
	defaultTTL         time.Duration
	maxConfirmAttempts int
}

func NewService(begin BeginFunc, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		begin:              begin,
		logger:             logger.Named("inventory"),
		now:                func() time.Time { return time.Now().UTC() },
		defaultTTL:         DefaultReservationTTL,
		maxConfirmAttempts: DefaultMaxConfirmAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

func (s *Service) available(ctx context.Context, uow UnitOfWork, productID string, now time.Time) (int, error) {
	p, err := uow.Products().Load(ctx, productID)
	if err != nil {
		return 0, err
	}
	pending, err := uow.Reservations().SumPendingQuantity(ctx, productID, now)
	if err != nil {
		return 0, fmt.Errorf("sum pending reservations: %w", err)
	}
	return p.Quantity - pending, nil
}

// Available returns the product quantity not held by live reservations.
func (s *Service) Available(ctx context.Context, productID string) (int, error) {
	if err := product.ValidateID(productID); err != nil {
		return 0, err
	}

	var available int
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		available, err = s.available(ctx, uow, productID, s.now())
		return err
	})
	return available, err
}

// CreateReservation holds quantity units of a product for ttl, or for the
// default TTL when ttl is not positive. A ttl above MaxReservationTTL is
// rejected. The availability check is not
// serialized against concurrent requests; confirmation re-checks stock.
func (s *Service) CreateReservation(ctx context.Context, productID string, quantity int, ttl time.Duration) (*Reservation, error) {
	if err := product.ValidateID(productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > MaxReservationTTL {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}

	now := s.now()
	var r *Reservation
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		available, err := s.available(ctx, uow, productID, now)
		if err != nil {
			return err
		}
		if quantity > available {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, quantity, available)
		}

		r, err = NewReservation(productID, quantity, ttl, now)
		if err != nil {
			return err
		}
		return uow.Reservations().Add(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Time("expires_at", r.ExpiresAt),
	)
	return r, nil
}

// ConfirmReservations confirms every reservation and deducts stock in a
// single unit of work. Any failure rolls back the whole batch. Version
// conflicts reload and retry the batch.
func (s *Service) ConfirmReservations(ctx context.Context, ids []string) error {
	ids, err := uniqueIDs(ids)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := s.confirmBatch(ctx, ids)
		if err == nil {
			s.logger.Info("reservations confirmed", zap.Strings("reservation_ids", ids))
			return nil
		}
		if !errors.Is(err, aggregate.ErrVersionConflict) || attempt >= s.maxConfirmAttempts {
			return err
		}
		s.logger.Warn("confirmation conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (s *Service) confirmBatch(ctx context.Context, ids []string) error {
	now := s.now()
	return s.inTx(ctx, func(uow UnitOfWork) error {
		loaded := make(map[string]*product.Product)
		var touched []*product.Product

		for _, id := range ids {
			r, err := uow.Reservations().Load(ctx, id)
			if err != nil {
				return err
			}

			p, ok := loaded[r.ProductID]
			if !ok {
				p, err = uow.Products().Load(ctx, r.ProductID)
				if err != nil {
					return err
				}
				loaded[r.ProductID] = p
				touched = append(touched, p)
			}

			if err := ConfirmReservation(r, p, now); err != nil {
				return err
			}
			if err := uow.Reservations().Update(ctx, r, r.PersistedVersion()); err != nil {
				return err
			}
		}

		for _, p := range touched {
			if err := uow.Products().Update(ctx, p, p.PersistedVersion()); err != nil {
				return err
			}
		}
		return nil
	})
}

func uniqueIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := product.ValidateID(id); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
