package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// ConnectPostgres opens a pooled connection and verifies it.
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

// PostgresDB starts units of work against one service database.
type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

func (p *PostgresDB) Begin(ctx context.Context) (*PostgresUnitOfWork, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &PostgresUnitOfWork{tx: tx}, nil
}

func (p *PostgresDB) BeginProducts(ctx context.Context) (product.UnitOfWork, error) {
	uow, err := p.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return uow, nil
}

func (p *PostgresDB) BeginInventory(ctx context.Context) (inventory.UnitOfWork, error) {
	uow, err := p.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return uow, nil
}

func (p *PostgresDB) BeginOrders(ctx context.Context) (order.UnitOfWork, error) {
	uow, err := p.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return uow, nil
}

// PostgresUnitOfWork wraps one storage transaction. Repositories write rows
// immediately; Commit appends the outbox rows of every written aggregate to
// the same transaction before committing it.
type PostgresUnitOfWork struct {
	tx      *sql.Tx
	tracker Tracker
}

func (u *PostgresUnitOfWork) Products() product.Repository {
	return &postgresProductRepository{tx: u.tx, tracker: &u.tracker}
}

func (u *PostgresUnitOfWork) Reservations() inventory.Repository {
	return &postgresReservationRepository{tx: u.tx, tracker: &u.tracker}
}

func (u *PostgresUnitOfWork) Orders() order.Repository {
	return &postgresOrderRepository{tx: u.tx, tracker: &u.tracker}
}

func (u *PostgresUnitOfWork) Commit(ctx context.Context) error {
	msgs, err := u.tracker.OutboxMessages()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		_, err := u.tx.ExecContext(ctx,
			`INSERT INTO outbox_messages (topic, correlation_id, payload, sent, processing, created_at, updated_at)
			 VALUES ($1, $2, $3, FALSE, FALSE, $4, $5)`,
			m.Topic, m.CorrelationID, string(m.Payload), m.CreatedAt, now,
		)
		if err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
	}

	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.tracker.ClearEvents()
	return nil
}

// Rollback is safe to defer; it is a no-op after Commit.
func (u *PostgresUnitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
