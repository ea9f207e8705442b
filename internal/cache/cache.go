package cache

import (
	"context"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
)

const (
	DefaultTTL      = 6 * time.Hour
	DefaultCapacity = 500
)

// Cache stores fetch results per (product, store, city). Implementations
// are safe for concurrent use. A miss and an expired entry look the same.
type Cache interface {
	Get(ctx context.Context, key models.CacheKey) (models.FetchResult, bool)
	// Put stores value for ttl; ttl <= 0 means the cache default.
	Put(ctx context.Context, key models.CacheKey, value models.FetchResult, ttl time.Duration)
}

// Cacheable reports whether a result may be stored. Aborted work is never
// cached so the next run retries it.
func Cacheable(r models.FetchResult) bool {
	return r.Failure != models.FailureCanceled
}
