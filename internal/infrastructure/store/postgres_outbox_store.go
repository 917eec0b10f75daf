package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// PostgresOutboxStore is the relay's view of the outbox table.
type PostgresOutboxStore struct {
	db *sql.DB
}

func NewPostgresOutboxStore(db *sql.DB) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

// ClaimBatch marks up to limit unsent rows as processing and returns them
// in id order. Rows left processing for longer than lease are reclaimed.
func (s *PostgresOutboxStore) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE outbox_messages SET processing = TRUE, updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM outbox_messages
		   WHERE sent = FALSE
		     AND (processing = FALSE OR updated_at < NOW() - make_interval(secs => $2))
		   ORDER BY id
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, topic, correlation_id, payload, sent, processing, created_at, updated_at`,
		limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.CorrelationID, &m.Payload, &m.Sent, &m.Processing, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PostgresOutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_messages SET sent = TRUE, processing = FALSE, updated_at = NOW()
		 WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	return err
}

// Release hands rows back for the next claim.
func (s *PostgresOutboxStore) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_messages SET processing = FALSE, updated_at = NOW()
		 WHERE id = ANY($1) AND sent = FALSE`,
		pq.Array(ids),
	)
	return err
}
