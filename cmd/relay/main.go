package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/stock-reservation/internal/config"
	"github.com/example/stock-reservation/internal/infrastructure/kafka"
	"github.com/example/stock-reservation/internal/infrastructure/store"
	"github.com/example/stock-reservation/internal/logging"
	"github.com/example/stock-reservation/internal/outbox"
	"go.uber.org/zap"
)

// The relay drains the outbox of one database. Run one per service
// database, pointing DATABASE_URL at it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", "relay"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.ConnectPostgres(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	relay := outbox.NewRelay(logger, store.NewPostgresOutboxStore(db), producer,
		cfg.Relay.BatchSize, cfg.Relay.Interval, cfg.Relay.Lease)

	logger.Info("publishing to kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	if err := relay.Run(ctx); err != nil {
		logger.Error("relay failed", zap.Error(err))
	}
}
