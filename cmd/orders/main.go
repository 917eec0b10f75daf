package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/stock-reservation/internal/api"
	"github.com/example/stock-reservation/internal/auth"
	"github.com/example/stock-reservation/internal/client"
	"github.com/example/stock-reservation/internal/config"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/infrastructure/store"
	"github.com/example/stock-reservation/internal/logging"
	"go.uber.org/zap"
)

const serviceUserID = "orders-service"

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
	logger = logger.With(zap.String("service", "orders"))

	if err := cfg.RequireJWTSecret(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MIGRATIONS_DIR is migrations/orders for this service.
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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	logger.Info("jwt configured", zap.Duration("access_token_ttl", jwtService.AccessTokenExpiry()))

	// The orders service calls inventory with its own service-role token.
	serviceToken := func() (string, error) {
		token, _, err := jwtService.GenerateAccessToken(serviceUserID, auth.RoleService)
		return token, err
	}
	inventoryClient := client.NewInventoryClient(cfg.Orders.InventoryURL, cfg.Orders.InventoryTimeout, serviceToken, logger)

	orderSvc := order.NewService(store.NewPostgresDB(db).BeginOrders, inventoryClient, logger, cfg.Orders.ReservationTTL)
	handler := api.NewOrderHandler(orderSvc, logger)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewOrderRouter(handler, jwtService, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("inventory_url", cfg.Orders.InventoryURL),
		)
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
}
