package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval  = 30 * time.Second
	DefaultSweepBatchSize = 100
)

// Sweeper expires Pending reservations whose TTL has passed, releasing the
// stock they held. Several sweepers may run against the same store: marking
// an already expired or confirmed reservation is a no-op.
type Sweeper struct {
	begin     BeginFunc
	logger    *zap.Logger
	now       func() time.Time
	interval  time.Duration
	batchSize int
}

func NewSweeper(begin BeginFunc, logger *zap.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &Sweeper{
		begin:     begin,
		logger:    logger.Named("sweeper"),
		now:       func() time.Time { return time.Now().UTC() },
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps on every tick until ctx is cancelled. Errors are logged and the
// next tick retries.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("batch_size", s.batchSize))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return nil
		case <-t.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("released expired reservations", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce expires one batch in a single unit of work and returns how many
// reservations changed state.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	uow, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	now := s.now()
	expired, err := uow.Reservations().ListExpiredPending(ctx, s.batchSize, now)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	n := 0
	for _, r := range expired {
		before := r.Version
		if err := r.MarkExpired(now); err != nil {
			return 0, fmt.Errorf("expire reservation %s: %w", r.ID, err)
		}
		if r.Version == before {
			continue
		}
		if err := uow.Reservations().Update(ctx, r, r.PersistedVersion()); err != nil {
			return 0, fmt.Errorf("update reservation %s: %w", r.ID, err)
		}
		n++
	}

	if err := uow.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sweep: %w", err)
	}
	return n, nil
}
