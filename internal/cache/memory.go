package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
)

type memoryEntry struct {
	key       models.CacheKey
	value     models.FetchResult
	expiresAt time.Time
}

// Memory is a bounded in-process cache. Entries expire after their TTL and
// the least recently used entry is evicted when capacity is reached.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	order *list.List
	items map[models.CacheKey]*list.Element
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(capacity int, ttl time.Duration, opts ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m := &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[models.CacheKey]*list.Element),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, key models.CacheKey) (models.FetchResult, bool) {
	r, _, ok := m.lookup(key)
	return r, ok
}

// lookup also returns the expiry so a tier above can keep it.
func (m *Memory) lookup(key models.CacheKey) (models.FetchResult, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return models.FetchResult{}, time.Time{}, false
	}

	e := el.Value.(*memoryEntry)
	if !m.now().Before(e.expiresAt) {
		m.removeElement(el)
		return models.FetchResult{}, time.Time{}, false
	}

	m.order.MoveToFront(el)
	return e.value, e.expiresAt, true
}

func (m *Memory) Put(ctx context.Context, key models.CacheKey, value models.FetchResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.putUntil(key, value, m.now().Add(ttl))
}

func (m *Memory) putUntil(key models.CacheKey, value models.FetchResult, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = value
		e.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return
	}

	m.items[key] = m.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})

	for m.order.Len() > m.capacity {
		m.removeElement(m.order.Back())
	}
}

func (m *Memory) removeElement(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}

// Len counts stored entries, including expired ones not yet dropped.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order.Init()
	m.items = make(map[models.CacheKey]*list.Element)
}

func (m *Memory) TTL() time.Duration {
	return m.ttl
}
