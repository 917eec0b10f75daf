//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/stock-reservation/internal/cache"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/example/stock-reservation/internal/infrastructure/store/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestCachedProducts_Redis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	db := mocks.NewMemoryStore()
	cached := cache.NewCachedProducts(product.NewService(db.BeginProducts, zap.NewNop()), rdb, time.Minute, zap.NewNop())

	p, err := cached.Create(ctx, "Widget", decimal.RequireFromString("3.50"), 1, "admin-1")
	require.NoError(t, err)

	price, err := cached.GetProductPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.50").Equal(price))

	cachedVal, err := rdb.Get(ctx, "product:"+p.ID+":price").Result()
	require.NoError(t, err)
	assert.Equal(t, "3.5", cachedVal)

	// A hit does not open a unit of work.
	begins := db.BeginCalls
	_, err = cached.GetProductPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, begins, db.BeginCalls)

	_, err = cached.ChangePrice(ctx, p.ID, decimal.NewFromInt(4), "admin-1")
	require.NoError(t, err)
	assert.ErrorIs(t, rdb.Get(ctx, "product:"+p.ID+":price").Err(), redis.Nil)

	price, err = cached.GetProductPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(price))

	require.NoError(t, cached.Delete(ctx, p.ID))
	assert.ErrorIs(t, rdb.Get(ctx, "product:"+p.ID+":price").Err(), redis.Nil)
}
