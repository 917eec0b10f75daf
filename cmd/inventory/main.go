package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/example/stock-reservation/internal/api"
	"github.com/example/stock-reservation/internal/auth"
	"github.com/example/stock-reservation/internal/cache"
	"github.com/example/stock-reservation/internal/config"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/example/stock-reservation/internal/infrastructure/store"
	"github.com/example/stock-reservation/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

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
	logger = logger.With(zap.String("service", "inventory"))

	if err := cfg.RequireJWTSecret(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MIGRATIONS_DIR is migrations/inventory for this service.
	if dir := cfg.Postgres.MigrationsDir; dir != "" {
		if err := store.Migrate(cfg.Postgres.URL, dir); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		logger.Info("migrations applied", zap.String("dir", dir))
	}

	db, err := store.ConnectPostgres(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to postgres")

	pg := store.NewPostgresDB(db)

	productSvc := product.NewService(pg.BeginProducts, logger)
	var catalog api.ProductCatalog = productSvc
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, price cache will fall back to postgres", zap.Error(err))
		}
		catalog = cache.NewCachedProducts(productSvc, rdb, cfg.Redis.PriceTTL, logger)
		logger.Info("price cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	reservationSvc := inventory.NewService(pg.BeginInventory, logger,
		inventory.WithDefaultTTL(cfg.Stock.ReservationTTL),
		inventory.WithMaxConfirmAttempts(cfg.Stock.ConfirmMaxAttempts),
	)
	sweeper := inventory.NewSweeper(pg.BeginInventory, logger, cfg.Stock.SweepInterval, cfg.Stock.SweepBatchSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	logger.Info("jwt configured", zap.Duration("access_token_ttl", jwtService.AccessTokenExpiry()))
	handler := api.NewInventoryHandler(catalog, reservationSvc, logger)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewInventoryRouter(handler, jwtService, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	wg.Wait()
}
