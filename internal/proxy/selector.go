package proxy

import (
	"math/rand/v2"
	"sync"
)

// Selector picks a proxy uniformly at random for each request. The pool is
// never mutated, so one pool can be shared by every worker.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector() *Selector {
	return &Selector{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSelectorWithSource is used by tests to get a reproducible sequence.
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// Select returns Direct when the pool is empty.
func (s *Selector) Select(pool []Endpoint) Endpoint {
	if len(pool) == 0 {
		return Direct
	}
	if len(pool) == 1 {
		return pool[0]
	}

	s.mu.Lock()
	i := s.rng.IntN(len(pool))
	s.mu.Unlock()

	return pool[i]
}
