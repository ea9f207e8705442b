package report

import (
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/shopspring/decimal"
)

const Unavailable = "unavailable"

type Cell struct {
	Store  models.StoreID
	Result models.FetchResult
}

// PriceText renders the cell price with two decimals, or "unavailable".
func (c Cell) PriceText() string {
	if !c.Result.Available() {
		return Unavailable
	}
	return c.Result.Price.Decimal.StringFixed(2)
}

type Row struct {
	Product string
	// Cells follow Table.Stores.
	Cells []Cell
	// Best is nil when no store had a price.
	Best *models.BestOffer
}

type Table struct {
	City   models.City
	Stores []models.StoreID
	Rows   []Row
}

// BuildTable lays the matrix out as one row per product in batch order.
func BuildTable(m *models.PriceMatrix) Table {
	t := Table{
		City:   m.City,
		Stores: append([]models.StoreID(nil), m.Stores...),
		Rows:   make([]Row, 0, len(m.Products)),
	}

	for _, product := range m.Products {
		row := Row{Product: product, Cells: make([]Cell, 0, len(m.Stores))}
		for _, store := range m.Stores {
			row.Cells = append(row.Cells, Cell{Store: store, Result: m.Result(product, store)})
		}
		if best, ok := m.Best(product); ok {
			row.Best = &best
		}
		t.Rows = append(t.Rows, row)
	}

	return t
}

type StoreGroup struct {
	Store models.StoreID     `json:"store"`
	Items []models.BestOffer `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

// Grouping is the shopping list split by the store where each product is
// cheapest.
type Grouping struct {
	Groups      []StoreGroup    `json:"groups"`
	Unavailable []string        `json:"unavailable"`
	Total       decimal.Decimal `json:"total"`
}

func GroupByCheapestStore(t Table) Grouping {
	byStore := make(map[models.StoreID]*StoreGroup)
	g := Grouping{Total: decimal.Zero, Unavailable: []string{}}

	for _, row := range t.Rows {
		if row.Best == nil {
			g.Unavailable = append(g.Unavailable, row.Product)
			continue
		}
		sg, ok := byStore[row.Best.Store]
		if !ok {
			sg = &StoreGroup{Store: row.Best.Store, Total: decimal.Zero}
			byStore[row.Best.Store] = sg
		}
		sg.Items = append(sg.Items, *row.Best)
		sg.Total = sg.Total.Add(row.Best.Price)
		g.Total = g.Total.Add(row.Best.Price)
	}

	for _, store := range t.Stores {
		if sg, ok := byStore[store]; ok {
			g.Groups = append(g.Groups, *sg)
		}
	}
	return g
}
