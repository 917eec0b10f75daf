package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/product"
)

const reservationColumns = `id, product_id, quantity, status, expires_at, created_at, version`

type postgresReservationRepository struct {
	tx      *sql.Tx
	tracker *Tracker
}

func scanReservation(row rowScanner) (*inventory.Reservation, error) {
	r := &inventory.Reservation{}
	err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (r *postgresReservationRepository) Load(ctx context.Context, id string) (*inventory.Reservation, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM product_reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrReservationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *postgresReservationRepository) Add(ctx context.Context, res *inventory.Reservation) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO product_reservations (`+reservationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.ProductID, res.Quantity, res.Status, res.ExpiresAt, res.CreatedAt, res.Version,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: reservation %s already exists", aggregate.ErrConflict, res.ID)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", product.ErrProductNotFound, res.ProductID)
	}
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", res.ID, err)
	}
	r.tracker.Track(res)
	return nil
}

func (r *postgresReservationRepository) Update(ctx context.Context, res *inventory.Reservation, expectedVersion int) error {
	result, err := r.tx.ExecContext(ctx,
		`UPDATE product_reservations SET status = $2, version = $3
		 WHERE id = $1 AND version = $4`,
		res.ID, res.Status, res.Version, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", res.ID, err)
	}
	if err := expectOneRow(result, "reservation", res.ID, expectedVersion); err != nil {
		return err
	}
	r.tracker.Track(res)
	return nil
}

func (r *postgresReservationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.tx.ExecContext(ctx, `DELETE FROM product_reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrReservationNotFound, id)
	}
	return nil
}

func (r *postgresReservationRepository) SumPendingQuantity(ctx context.Context, productID string, now time.Time) (int, error) {
	var total int
	err := r.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM product_reservations
		 WHERE product_id = $1 AND status = $2 AND expires_at >= $3`,
		productID, inventory.StatusPending, now,
	).Scan(&total)
	return total, err
}

// ListExpiredPending locks the returned rows and skips rows locked by a
// concurrent sweeper.
func (r *postgresReservationRepository) ListExpiredPending(ctx context.Context, max int, now time.Time) ([]*inventory.Reservation, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM product_reservations
		 WHERE status = $1 AND expires_at < $2
		 ORDER BY expires_at ASC
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		inventory.StatusPending, now, max,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*inventory.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
