package product

import (
	"context"
	"strings"
)

// Repository persists products as current-state rows. Update is a
// conditional write: it fails with aggregate.ErrVersionConflict when the
// stored version differs from expectedVersion.
type Repository interface {
	Load(ctx context.Context, id string) (*Product, error)
	Add(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product, expectedVersion int) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Product, int, error)
}

// UnitOfWork scopes repository calls to one storage transaction. Commit
// writes the outbox rows for every aggregate added or updated through it.
type UnitOfWork interface {
	Products() Repository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type BeginFunc func(ctx context.Context) (UnitOfWork, error)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type SortField string

const (
	SortByName      SortField = "name"
	SortByPrice     SortField = "price"
	SortByQuantity  SortField = "quantity"
	SortByCreatedAt SortField = "createdat"
)

type ListFilter struct {
	Search   string
	Page     int
	PageSize int
	SortBy   SortField
	Desc     bool
}

// Normalize clamps paging and falls back to sorting by name.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
	switch SortField(strings.ToLower(string(f.SortBy))) {
	case SortByPrice:
		f.SortBy = SortByPrice
	case SortByQuantity:
		f.SortBy = SortByQuantity
	case SortByCreatedAt:
		f.SortBy = SortByCreatedAt
	default:
		f.SortBy = SortByName
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Page struct {
	Items      []*Product `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
