package cache

import (
	"context"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
)

// Tiered checks the local memory cache before Redis. Redis hits are copied
// into memory with whatever TTL they have left.
type Tiered struct {
	local  *Memory
	remote *Redis
}

func NewTiered(local *Memory, remote *Redis) *Tiered {
	return &Tiered{local: local, remote: remote}
}

func (t *Tiered) Get(ctx context.Context, key models.CacheKey) (models.FetchResult, bool) {
	if r, ok := t.local.Get(ctx, key); ok {
		return r, true
	}

	r, expiresAt, ok := t.remote.lookup(ctx, key)
	if !ok {
		return models.FetchResult{}, false
	}

	t.local.putUntil(key, r, expiresAt)
	return r, true
}

func (t *Tiered) Put(ctx context.Context, key models.CacheKey, value models.FetchResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.local.TTL()
	}
	t.local.Put(ctx, key, value, ttl)
	t.remote.Put(ctx, key, value, ttl)
}

func (t *Tiered) Local() *Memory {
	return t.local
}
