package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceMatrix_BestTieGoesToFirstStore(t *testing.T) {
	stores := []StoreID{"A", "B", "C"}
	m := NewPriceMatrix(CityRiyadh, []string{"Milk 1L"}, stores)

	m.Set("Milk 1L", "A", Found(decimal.RequireFromString("18.0"), "https://a/milk"))
	m.Set("Milk 1L", "B", Found(decimal.RequireFromString("18.00"), "https://b/milk"))
	m.Set("Milk 1L", "C", Failed(FailureExtraction))

	for i := 0; i < 20; i++ {
		best, ok := m.Best("Milk 1L")
		require.True(t, ok)
		assert.Equal(t, StoreID("A"), best.Store)
		assert.Equal(t, "https://a/milk", best.Link)
	}
}

func TestPriceMatrix_BestPicksMinimum(t *testing.T) {
	m := NewPriceMatrix(CityJeddah, []string{"Eggs"}, []StoreID{StoreDanube, StorePanda, StoreLulu})
	m.Set("Eggs", StoreDanube, Found(decimal.RequireFromString("21.95"), "d"))
	m.Set("Eggs", StorePanda, Found(decimal.RequireFromString("19.50"), "p"))
	m.Set("Eggs", StoreLulu, Found(decimal.RequireFromString("20"), "l"))

	best, ok := m.Best("Eggs")
	require.True(t, ok)
	assert.Equal(t, StorePanda, best.Store)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("19.5")))
}

func TestPriceMatrix_AllFailedIsUnavailable(t *testing.T) {
	m := NewPriceMatrix(CityRiyadh, []string{"Bread", "Milk"}, []StoreID{StoreDanube, StoreTamimi})
	m.Set("Bread", StoreDanube, Failed(FailureTimeout))
	m.Set("Bread", StoreTamimi, Failed(FailureNetwork))
	m.Set("Milk", StoreDanube, Found(decimal.NewFromInt(6), ""))

	best, ok := m.Best("Bread")
	assert.False(t, ok)
	assert.True(t, best.Price.IsZero())
	assert.Empty(t, best.Store)

	assert.Equal(t, []string{"Bread"}, m.Unavailable())
}

func TestPriceMatrix_ZeroPriceIsAvailable(t *testing.T) {
	m := NewPriceMatrix(CityRiyadh, []string{"Sample"}, []StoreID{StoreDanube, StorePanda})
	m.Set("Sample", StoreDanube, Found(decimal.NewFromInt(3), ""))
	m.Set("Sample", StorePanda, Found(decimal.Zero, ""))

	best, ok := m.Best("Sample")
	require.True(t, ok)
	assert.Equal(t, StorePanda, best.Store)
}

func TestPriceMatrix_IgnoresUnknownProduct(t *testing.T) {
	m := NewPriceMatrix(CityRiyadh, []string{"Milk"}, []StoreID{StoreDanube})
	m.Set("Other", StoreDanube, Found(decimal.NewFromInt(1), ""))

	_, ok := m.Get("Other", StoreDanube)
	assert.False(t, ok)
}

func TestFound_RejectsNegative(t *testing.T) {
	r := Found(decimal.NewFromInt(-1), "x")
	assert.False(t, r.Success)
	assert.False(t, r.Price.Valid)
	assert.Equal(t, FailureExtraction, r.Failure)
}

func TestParseCity(t *testing.T) {
	tests := []struct {
		in      string
		want    City
		wantErr bool
	}{
		{in: "riyadh", want: CityRiyadh},
		{in: "Jeddah", want: CityJeddah},
		{in: "الدمام", want: CityDammam},
		{in: "المدينة المنورة", want: CityMadinah},
		{in: "cairo", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStoreIDs(t *testing.T) {
	got := ParseStoreIDs(" Danube, panda,,LULU ")
	assert.Equal(t, []StoreID{StoreDanube, StorePanda, StoreLulu}, got)
}

func TestCacheKey_StringIsCaseSensitive(t *testing.T) {
	a := CacheKey{Product: "Milk", Store: StoreDanube, City: CityRiyadh}
	b := CacheKey{Product: "milk", Store: StoreDanube, City: CityRiyadh}
	assert.NotEqual(t, a.String(), b.String())
}
