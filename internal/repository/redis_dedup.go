package repository

import (
	"context"
	"time"

	pkgcache "MarketPulse/pkg/cache"
)

// RedisDeduper is the fast-path dedup reservation backed by Redis SET NX.
// It only short-circuits duplicates; the alert table stays authoritative.
type RedisDeduper struct {
	cache *pkgcache.RedisCache
}

func NewRedisDeduper(cache *pkgcache.RedisCache) *RedisDeduper {
	return &RedisDeduper{cache: cache}
}

func (d *RedisDeduper) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.cache.TryLock(ctx, "alert:"+key, ttl)
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.cache.Unlock(ctx, "alert:"+key)
}
