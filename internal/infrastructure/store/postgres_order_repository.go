package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/order"
)

type postgresOrderRepository struct {
	tx      *sql.Tx
	tracker *Tracker
}

func (r *postgresOrderRepository) Load(ctx context.Context, id string) (*order.Order, error) {
	o := &order.Order{}
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, customer_id, status, total, cancel_reason, version, created_at, created_by, updated_at, updated_by
		 FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &o.CancelReason, &o.Version,
		&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt, &o.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	rows, err := r.tx.QueryContext(ctx,
		`SELECT id, product_id, quantity, unit_price FROM order_lines
		 WHERE order_id = $1 ORDER BY position ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load lines of order %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresOrderRepository) Add(ctx context.Context, o *order.Order) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, status, total, cancel_reason, version, created_at, created_by, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.CustomerID, o.Status, o.Total, o.CancelReason, o.Version,
		o.CreatedAt, o.CreatedBy, o.UpdatedAt, o.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s already exists", aggregate.ErrConflict, o.ID)
	}
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	if err := r.insertLines(ctx, o); err != nil {
		return err
	}
	r.tracker.Track(o)
	return nil
}

func (r *postgresOrderRepository) Update(ctx context.Context, o *order.Order, expectedVersion int) error {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, total = $3, cancel_reason = $4, version = $5, updated_at = $6, updated_by = $7
		 WHERE id = $1 AND version = $8`,
		o.ID, o.Status, o.Total, o.CancelReason, o.Version, o.UpdatedAt, o.UpdatedBy, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if err := expectOneRow(res, "order", o.ID, expectedVersion); err != nil {
		return err
	}

	if _, err := r.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, o.ID); err != nil {
		return fmt.Errorf("clear lines of order %s: %w", o.ID, err)
	}
	if err := r.insertLines(ctx, o); err != nil {
		return err
	}
	r.tracker.Track(o)
	return nil
}

func (r *postgresOrderRepository) insertLines(ctx context.Context, o *order.Order) error {
	for i, l := range o.Lines {
		_, err := r.tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, position)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, o.ID, l.ProductID, l.Quantity, l.UnitPrice, i,
		)
		if err != nil {
			return fmt.Errorf("insert line %s of order %s: %w", l.ID, o.ID, err)
		}
	}
	return nil
}

func (r *postgresOrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
	}
	return nil
}
