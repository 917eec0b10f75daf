package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultPriceTTL = time.Minute

// CachedProducts is a read-through Redis cache in front of the product
// price query. Writes that change or remove a price drop the cached entry
// after they commit. Redis failures fall back to the store.
type CachedProducts struct {
	*product.Service
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProducts(next *product.Service, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedProducts {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &CachedProducts{
		Service: next,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger.Named("price_cache"),
	}
}

func priceKey(id string) string {
	return fmt.Sprintf("product:%s:price", id)
}

func (c *CachedProducts) GetProductPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	if err := product.ValidateID(id); err != nil {
		return decimal.Zero, err
	}

	key := priceKey(id)
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := decimal.NewFromString(val); perr == nil {
			return price, nil
		}
		c.logger.Warn("discarding malformed cached price", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
	}

	price, err := c.Service.GetProductPrice(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.rdb.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
	}
	return price, nil
}

func (c *CachedProducts) ChangePrice(ctx context.Context, id string, price decimal.Decimal, performedBy string) (*product.Product, error) {
	p, err := c.Service.ChangePrice(ctx, id, price, performedBy)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return p, nil
}

func (c *CachedProducts) Delete(ctx context.Context, id string) error {
	if err := c.Service.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedProducts) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(context.WithoutCancel(ctx), priceKey(id)).Err(); err != nil {
		c.logger.Warn("price cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}
