package product

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	begin  BeginFunc
	logger *zap.Logger
}

func NewService(begin BeginFunc, logger *zap.Logger) *Service {
	return &Service{begin: begin, logger: logger.Named("product")}
}

// ValidateID rejects ids that are not UUIDs.
func ValidateID(id string) error {
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

func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal, quantity int, createdBy string) (*Product, error) {
	p, err := Create(name, price, quantity, createdBy)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(uow UnitOfWork) error {
		return uow.Products().Add(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.String("product_id", p.ID), zap.Int("quantity", p.Quantity))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var p *Product
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		p, err = uow.Products().Load(ctx, id)
		return err
	})
	return p, err
}

// GetProductPrice answers the price query of the reservation protocol.
func (s *Service) GetProductPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	filter = filter.Normalize()

	page := &Page{Page: filter.Page, PageSize: filter.PageSize}
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		items, total, err := uow.Products().List(ctx, filter)
		if err != nil {
			return err
		}
		page.Items = items
		page.TotalCount = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Service) ChangePrice(ctx context.Context, id string, price decimal.Decimal, performedBy string) (*Product, error) {
	return s.mutate(ctx, id, func(p *Product) error {
		return p.ChangePrice(price, performedBy)
	})
}

// AdjustStock applies a manual restock or correction.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, performedBy string) (*Product, error) {
	p, err := s.mutate(ctx, id, func(p *Product) error {
		return p.AdjustQuantity(delta, performedBy)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", id),
		zap.Int("delta", delta),
		zap.Int("quantity", p.Quantity),
	)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.inTx(ctx, func(uow UnitOfWork) error {
		if _, err := uow.Products().Load(ctx, id); err != nil {
			return err
		}
		return uow.Products().Delete(ctx, id)
	})
}

func (s *Service) mutate(ctx context.Context, id string, change func(p *Product) error) (*Product, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var p *Product
	err := s.inTx(ctx, func(uow UnitOfWork) error {
		var err error
		p, err = uow.Products().Load(ctx, id)
		if err != nil {
			return err
		}
		if err := change(p); err != nil {
			return err
		}
		return uow.Products().Update(ctx, p, p.PersistedVersion())
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
