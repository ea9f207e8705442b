package stores

import (
	"errors"
	"testing"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		store   models.StoreID
		product string
		want    string
	}{
		{models.StoreDanube, "Milk 1L", "https://danube.sa/en/search?query=Milk%201L"},
		{models.StoreCarrefour, "Milk 1L", "https://www.carrefourksa.com/mafsau/ar/search/?text=Milk%201L"},
		{models.StorePanda, "Rice & Beans", "https://www.panda.com.sa/search?q=Rice%20%26%20Beans"},
		{models.StoreLulu, "حليب", "https://www.luluhypermarket.com/ar/search?q=%D8%AD%D9%84%D9%8A%D8%A8"},
		{models.StoreOthaim, "Eggs", "https://www.othaimmarkets.com/search/?text=Eggs"},
		{models.StoreTamimi, "a/b", "https://tamimimarkets.com/search?query=a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(string(tt.store), func(t *testing.T) {
			a, err := reg.Get(tt.store)
			require.NoError(t, err)

			got, err := a.BuildURL(tt.product, models.CityRiyadh)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildURL_CityAgnosticStoresIgnoreCity(t *testing.T) {
	for _, a := range DefaultRegistry().List() {
		riyadh, err := a.BuildURL("Milk", models.CityRiyadh)
		require.NoError(t, err)
		jeddah, err := a.BuildURL("Milk", models.CityJeddah)
		require.NoError(t, err)
		assert.Equal(t, riyadh, jeddah, a.ID())
	}
}

func TestBuildURL_CityParam(t *testing.T) {
	a := NewCustom(Descriptor{
		ID:             "local",
		Origin:         "https://shop.test",
		SearchTemplate: "https://shop.test/search?q=%s",
		CityParam:      "city",
		Rule:           Rule{Container: ".item", Link: "a", Price: ".price"},
	})

	got, err := a.BuildURL("Milk", models.CityJeddah)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/search?q=Milk&city=jeddah", got)
}

func TestBuildURL_EmptyProduct(t *testing.T) {
	_, err := NewDanube().BuildURL("  ", models.CityRiyadh)
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	const pageURL = "https://store.test/search?q=milk"

	tests := []struct {
		name      string
		adapter   Adapter
		html      string
		wantPrice string
		wantLink  string
	}{
		{
			name:      "danube relative link",
			adapter:   NewDanube(),
			html:      `<div class="product-item"><a href="/en/product/milk-1l"><span class="price">SAR 18.50</span></a></div>`,
			wantPrice: "18.5",
			wantLink:  "https://danube.sa/en/product/milk-1l",
		},
		{
			name:    "carrefour absolute link and Arabic digits",
			adapter: NewCarrefour(),
			html: `<ul><li data-testid="product-card"><a href="https://www.carrefourksa.com/mafsau/ar/p/123">
				<span>حليب</span><div data-testid="price">١٨٫٠٠ ر.س.</div></a></li></ul>`,
			wantPrice: "18",
			wantLink:  "https://www.carrefourksa.com/mafsau/ar/p/123",
		},
		{
			name:      "panda price outside anchor",
			adapter:   NewPanda(),
			html:      `<div class="product-card"><a href="p/almarai-milk">Almarai</a><span class="price">17.25 SR</span></div>`,
			wantPrice: "17.25",
			wantLink:  "https://www.panda.com.sa/p/almarai-milk",
		},
		{
			name:      "lulu without anchor falls back to search page",
			adapter:   NewLulu(),
			html:      `<div class="product-box"><span class="price">9.95 ريال</span></div>`,
			wantPrice: "9.95",
			wantLink:  pageURL,
		},
		{
			name:    "othaim current price only",
			adapter: NewOthaim(),
			html: `<div class="product-item"><a href="//www.othaimmarkets.com/p/9">
				<span class="price-old">12.00</span><span class="price-now">10.50</span></a></div>`,
			wantPrice: "10.5",
			wantLink:  "https://www.othaimmarkets.com/p/9",
		},
		{
			name:    "tamimi skips entries without a price",
			adapter: NewTamimi(),
			html: `<div class="product"><a href="/ad">Sponsored</a></div>
				<div class="product"><a href="/milk"><b class="price">1,020.00 SAR</b></a></div>`,
			wantPrice: "1020",
			wantLink:  "https://tamimimarkets.com/milk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.adapter.Extract(tt.html, pageURL)
			require.NoError(t, err)
			require.True(t, got.Success)
			require.True(t, got.Price.Valid)
			assert.Equal(t, tt.wantPrice, got.Price.Decimal.String())
			assert.Equal(t, tt.wantLink, got.Link)
		})
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		parse bool
	}{
		{name: "empty page", html: ""},
		{name: "no product container", html: `<div class="empty">لا توجد نتائج</div>`},
		{name: "container without price", html: `<div class="product-item"><a href="/x">Milk</a></div>`},
		{name: "unparsable price", html: `<div class="product-item"><a href="/x"><span class="price">Call for price</span></a></div>`, parse: true},
		{name: "broken markup", html: `<div class="product-item"><a href=<<<span class="price">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got models.FetchResult
				err error
			)
			assert.NotPanics(t, func() {
				got, err = NewDanube().Extract(tt.html, "https://danube.sa/en/search?query=x")
			})

			assert.False(t, got.Success)
			assert.False(t, got.Price.Valid)
			assert.Equal(t, models.FailureExtraction, got.Failure)

			var extractErr *ExtractionError
			require.True(t, errors.As(err, &extractErr))
			assert.Equal(t, models.StoreDanube, extractErr.Store)

			if tt.parse {
				var parseErr *parser.ParseError
				assert.True(t, errors.As(err, &parseErr))
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, models.AllStores(), reg.IDs())

	for _, id := range models.AllStores() {
		a, err := reg.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID())
		assert.NotEmpty(t, a.DisplayName())
		assert.NotEmpty(t, a.ReadySelector())
	}

	_, err := reg.Get("bindawood")
	var unknown *UnknownStoreError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, models.StoreID("bindawood"), unknown.ID)
}
