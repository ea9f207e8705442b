package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter spaces consecutive actions by a random delay in
// [minDelay, maxDelay). Waiters are served one at a time.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.calculateDelay()
	if elapsed := time.Since(r.lastAction); elapsed < delay {
		timer := time.NewTimer(delay - elapsed)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max < min {
		max = min
	}
	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	return r.minDelay + rand.N(r.maxDelay-r.minDelay)
}

const (
	maxMinDelay = 60 * time.Second
	maxMaxDelay = 120 * time.Second
)

// AdaptiveRateLimiter widens its delays after repeated errors and relaxes
// them again after a run of successes, never below the configured base.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	baseMin       time.Duration
	baseMax       time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	simple := NewSimpleRateLimiter(minDelay, maxDelay)
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: simple,
		baseMin:           simple.minDelay,
		baseMax:           simple.maxDelay,
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		a.minDelay = max(time.Duration(float64(a.minDelay)*0.9), a.baseMin)
		a.maxDelay = max(time.Duration(float64(a.maxDelay)*0.9), a.baseMax)
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		a.minDelay = min(time.Duration(float64(a.minDelay)*a.backoffFactor), maxMinDelay)
		a.maxDelay = min(time.Duration(float64(a.maxDelay)*a.backoffFactor), maxMaxDelay)
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.errorCount = 0
	}
}

// PerStore keeps one adaptive pacer per storefront so a slow or blocking
// store does not hold back the others.
type PerStore struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	limiters map[models.StoreID]*AdaptiveRateLimiter
}

func NewPerStore(minDelay, maxDelay time.Duration) *PerStore {
	return &PerStore{
		minDelay: minDelay,
		maxDelay: maxDelay,
		limiters: make(map[models.StoreID]*AdaptiveRateLimiter),
	}
}

func (p *PerStore) For(store models.StoreID) *AdaptiveRateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[store]
	if !ok {
		l = NewAdaptiveRateLimiter(p.minDelay, p.maxDelay)
		p.limiters[store] = l
	}
	return l
}

func (p *PerStore) Wait(ctx context.Context, store models.StoreID) error {
	return p.For(store).Wait(ctx)
}

// Record feeds the outcome of a request back into the store's pacer.
func (p *PerStore) Record(store models.StoreID, ok bool) {
	if ok {
		p.For(store).RecordSuccess()
		return
	}
	p.For(store).RecordError()
}

// Global caps the overall request rate across all stores and workers.
type Global struct {
	limiter *rate.Limiter
}

// NewGlobal allows rps requests per second; rps <= 0 means unlimited.
func NewGlobal(rps float64, burst int) *Global {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Global{limiter: rate.NewLimiter(limit, burst)}
}

func (g *Global) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// SetDelay converts a minimum spacing into a rate; max is ignored.
func (g *Global) SetDelay(min, _ time.Duration) {
	if min <= 0 {
		g.limiter.SetLimit(rate.Inf)
		return
	}
	g.limiter.SetLimit(rate.Every(min))
}
