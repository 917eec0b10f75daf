package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/product"
)

var productSortColumns = map[product.SortField]string{
	product.SortByName:      "name",
	product.SortByPrice:     "price",
	product.SortByQuantity:  "quantity",
	product.SortByCreatedAt: "created_at",
}

const productColumns = `id, name, price, quantity, version, created_at, created_by, updated_at, updated_by`

type postgresProductRepository struct {
	tx      *sql.Tx
	tracker *Tracker
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*product.Product, error) {
	p := &product.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity, &p.Version,
		&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *postgresProductRepository) Load(ctx context.Context, id string) (*product.Product, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", product.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	return p, nil
}

func (r *postgresProductRepository) Add(ctx context.Context, p *product.Product) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Price, p.Quantity, p.Version,
		p.CreatedAt, p.CreatedBy, p.UpdatedAt, p.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: product %s already exists", aggregate.ErrConflict, p.ID)
	}
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	r.tracker.Track(p)
	return nil
}

func (r *postgresProductRepository) Update(ctx context.Context, p *product.Product, expectedVersion int) error {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE products
		 SET name = $2, price = $3, quantity = $4, version = $5, updated_at = $6, updated_by = $7
		 WHERE id = $1 AND version = $8`,
		p.ID, p.Name, p.Price, p.Quantity, p.Version, p.UpdatedAt, p.UpdatedBy, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if err := expectOneRow(res, "product", p.ID, expectedVersion); err != nil {
		return err
	}
	r.tracker.Track(p)
	return nil
}

func (r *postgresProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", product.ErrProductInUse, id)
	}
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", product.ErrProductNotFound, id)
	}
	return nil
}

func (r *postgresProductRepository) List(ctx context.Context, filter product.ListFilter) ([]*product.Product, int, error) {
	filter = filter.Normalize()

	where := ""
	args := []any{}
	if filter.Search != "" {
		args = append(args, filter.Search)
		where = ` WHERE name ILIKE '%' || $1 || '%'`
	}

	var total int
	if err := r.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	var q strings.Builder
	q.WriteString(`SELECT ` + productColumns + ` FROM products` + where)
	fmt.Fprintf(&q, ` ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		productSortColumns[filter.SortBy], dir, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	rows, err := r.tx.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var items []*product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func expectOneRow(res sql.Result, kind, id string, expectedVersion int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s expected version %d", aggregate.ErrVersionConflict, kind, id, expectedVersion)
	}
	return nil
}
