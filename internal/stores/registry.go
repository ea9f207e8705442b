package stores

import (
	"github.com/maltedev/ksa-price-scraper/internal/models"
)

// Registry maps store ids to adapters. It is built once and read-only
// afterwards, so it is safe for concurrent use.
type Registry struct {
	adapters map[models.StoreID]Adapter
	order    []models.StoreID
}

// NewRegistry registers adapters in the given order. A later adapter with
// the same id replaces the earlier one but keeps its position.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.StoreID]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := r.adapters[a.ID()]; !exists {
			r.order = append(r.order, a.ID())
		}
		r.adapters[a.ID()] = a
	}
	return r
}

// DefaultRegistry holds the six supported storefronts.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewDanube(),
		NewCarrefour(),
		NewPanda(),
		NewLulu(),
		NewOthaim(),
		NewTamimi(),
	)
}

func (r *Registry) Get(id models.StoreID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, &UnknownStoreError{ID: id}
	}
	return a, nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []models.StoreID {
	out := make([]models.StoreID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) List() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}
