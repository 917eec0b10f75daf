package outbox

import (
	"context"
	"time"

	"github.com/example/stock-reservation/internal/infrastructure/store"
	"go.uber.org/zap"
)

type Store interface {
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]store.OutboxMessage, error)
	MarkSent(ctx context.Context, ids []int64) error
	Release(ctx context.Context, ids []int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay moves committed outbox rows to the broker. Delivery is at least
// once: a row published but not yet marked sent is published again after
// its lease runs out.
type Relay struct {
	logger    *zap.Logger
	store     Store
	publisher Publisher
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(logger *zap.Logger, store Store, publisher Publisher, batchSize int, interval, lease time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if lease <= 0 {
		lease = time.Minute
	}
	return &Relay{
		logger:    logger.Named("relay"),
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		lease:     lease,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.logger.Info("relay started", zap.Int("batch_size", r.batchSize), zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping")
			return nil
		case <-t.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("relay batch failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one claimed batch and returns how many rows were
// marked sent. After a failed publish the remaining rows of the same
// aggregate are released unpublished, so per-aggregate order holds.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.ClaimBatch(ctx, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	sent := make([]int64, 0, len(msgs))
	var failed []int64
	blocked := make(map[string]bool)
	for _, m := range msgs {
		if blocked[m.CorrelationID] {
			failed = append(failed, m.ID)
			continue
		}
		if err := r.publisher.Publish(ctx, m.Topic, m.CorrelationID, m.Payload); err != nil {
			r.logger.Warn("publish failed",
				zap.Int64("outbox_id", m.ID),
				zap.String("topic", m.Topic),
				zap.Error(err),
			)
			blocked[m.CorrelationID] = true
			failed = append(failed, m.ID)
			continue
		}
		sent = append(sent, m.ID)
	}

	// Bookkeeping must survive a shutdown that cancels ctx mid-batch.
	bookCtx := context.WithoutCancel(ctx)
	if err := r.store.MarkSent(bookCtx, sent); err != nil {
		return 0, err
	}
	if err := r.store.Release(bookCtx, failed); err != nil {
		return len(sent), err
	}
	return len(sent), nil
}
