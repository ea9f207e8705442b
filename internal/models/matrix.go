package models

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PriceMatrix holds one FetchResult per (product, store) cell of a batch.
// Product and store order are the batch input order.
type PriceMatrix struct {
	City     City
	Products []string
	Stores   []StoreID

	mu    sync.RWMutex
	cells map[string]map[StoreID]FetchResult
}

func NewPriceMatrix(city City, products []string, stores []StoreID) *PriceMatrix {
	cells := make(map[string]map[StoreID]FetchResult, len(products))
	for _, p := range products {
		cells[p] = make(map[StoreID]FetchResult, len(stores))
	}
	return &PriceMatrix{
		City:     city,
		Products: products,
		Stores:   stores,
		cells:    cells,
	}
}

// Set writes a cell. Cells for products outside the batch are ignored.
func (m *PriceMatrix) Set(product string, store StoreID, result FetchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.cells[product]
	if !ok {
		return
	}
	row[store] = result
}

// Get returns the cell, or ok=false when it was never written.
func (m *PriceMatrix) Get(product string, store StoreID) (FetchResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.cells[product][store]
	return r, ok
}

// Result returns the cell, treating unwritten cells as failed.
func (m *PriceMatrix) Result(product string, store StoreID) FetchResult {
	if r, ok := m.Get(product, store); ok {
		return r
	}
	return Failed(FailureNone)
}

// BestOffer is the cheapest available price for one product.
type BestOffer struct {
	Product string          `json:"product"`
	Store   StoreID         `json:"store"`
	Price   decimal.Decimal `json:"price"`
	Link    string          `json:"link,omitempty"`
}

// Best computes the cheapest store for a product. Ties go to the store that
// comes first in the matrix store order. ok is false when no store has a
// price.
func (m *PriceMatrix) Best(product string) (BestOffer, bool) {
	var best BestOffer
	found := false

	for _, store := range m.Stores {
		r := m.Result(product, store)
		if !r.Available() {
			continue
		}
		if !found || r.Price.Decimal.LessThan(best.Price) {
			best = BestOffer{
				Product: product,
				Store:   store,
				Price:   r.Price.Decimal,
				Link:    r.Link,
			}
			found = true
		}
	}

	return best, found
}

// Unavailable lists products without any price, in batch order.
func (m *PriceMatrix) Unavailable() []string {
	var out []string
	for _, p := range m.Products {
		if _, ok := m.Best(p); !ok {
			out = append(out, p)
		}
	}
	return out
}
