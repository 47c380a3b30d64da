// Package cache puts a redis cache-aside layer in front of catalog
// reads. Redis failures are logged and bypassed; the database stays
// authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/models"
)

const (
	productTTL  = 5 * time.Minute
	notFoundTTL = time.Minute
	notFoundVal = "notfound"
)

type ProductCache struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func productKey(id uint) string { return fmt.Sprintf("product:%d", id) }

// GetByID reads through the cache, with negative caching for missing
// products.
func (c *ProductCache) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	log := logging.FromContext(ctx)
	key := productKey(id)

	if c.Redis != nil {
		data, err := c.Redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if string(data) == notFoundVal {
				return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, id)
			}
			var p models.Product
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
			log.Warn("cache: bad product payload, falling back to db", "key", key)
		case errors.Is(err, redis.Nil):
		default:
			log.Warn("cache: redis get failed, falling back to db", "error", err)
		}
	}

	var p models.Product
	if err := c.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.set(ctx, key, []byte(notFoundVal), notFoundTTL)
			return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("cache: load product %d: %w", id, err)
	}

	if data, err := json.Marshal(&p); err == nil {
		c.set(ctx, key, data, productTTL)
	}
	return &p, nil
}

// Invalidate drops the cached copy after any product write, including
// stock movements.
func (c *ProductCache) Invalidate(ctx context.Context, id uint) {
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Del(ctx, productKey(id)).Err(); err != nil {
		logging.FromContext(ctx).Warn("cache: invalidate failed", "product_id", id, "error", err)
	}
}

func (c *ProductCache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("cache: set failed", "key", key, "error", err)
	}
}
