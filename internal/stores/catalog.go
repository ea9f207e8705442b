package stores

import "github.com/maltedev/ksa-price-scraper/internal/models"

type Danube struct{ selectorStore }

func NewDanube() *Danube {
	return &Danube{newSelectorStore(Descriptor{
		ID:             models.StoreDanube,
		Name:           "Danube",
		Origin:         "https://danube.sa",
		SearchTemplate: "https://danube.sa/en/search?query=%s",
		Rule:           Rule{Container: ".product-item", Link: "a", Price: ".price"},
	})}
}

type Carrefour struct{ selectorStore }

func NewCarrefour() *Carrefour {
	return &Carrefour{newSelectorStore(Descriptor{
		ID:             models.StoreCarrefour,
		Name:           "Carrefour",
		Origin:         "https://www.carrefourksa.com",
		SearchTemplate: "https://www.carrefourksa.com/mafsau/ar/search/?text=%s",
		Rule:           Rule{Container: `[data-testid="product-card"]`, Link: "a", Price: `[data-testid="price"]`},
	})}
}

type Panda struct{ selectorStore }

func NewPanda() *Panda {
	return &Panda{newSelectorStore(Descriptor{
		ID:             models.StorePanda,
		Name:           "Panda",
		Origin:         "https://www.panda.com.sa",
		SearchTemplate: "https://www.panda.com.sa/search?q=%s",
		Rule:           Rule{Container: ".product-card", Link: "a", Price: ".price"},
	})}
}

type Lulu struct{ selectorStore }

func NewLulu() *Lulu {
	return &Lulu{newSelectorStore(Descriptor{
		ID:             models.StoreLulu,
		Name:           "LuLu",
		Origin:         "https://www.luluhypermarket.com",
		SearchTemplate: "https://www.luluhypermarket.com/ar/search?q=%s",
		Rule:           Rule{Container: ".product-box", Link: "a", Price: ".price"},
	})}
}

type Othaim struct{ selectorStore }

func NewOthaim() *Othaim {
	return &Othaim{newSelectorStore(Descriptor{
		ID:             models.StoreOthaim,
		Name:           "Othaim",
		Origin:         "https://www.othaimmarkets.com",
		SearchTemplate: "https://www.othaimmarkets.com/search/?text=%s",
		Rule:           Rule{Container: ".product-item", Link: "a", Price: ".price-now"},
	})}
}

type Tamimi struct{ selectorStore }

func NewTamimi() *Tamimi {
	return &Tamimi{newSelectorStore(Descriptor{
		ID:             models.StoreTamimi,
		Name:           "Tamimi",
		Origin:         "https://tamimimarkets.com",
		SearchTemplate: "https://tamimimarkets.com/search?query=%s",
		Rule:           Rule{Container: ".product", Link: "a", Price: ".price"},
	})}
}

// NewCustom builds an adapter from an arbitrary descriptor, e.g. for a
// storefront served by a local test server.
func NewCustom(desc Descriptor) Adapter {
	s := newSelectorStore(desc)
	return &s
}
