package models

import (
	"fmt"
	"strings"
)

type City string

const (
	CityRiyadh  City = "riyadh"
	CityJeddah  City = "jeddah"
	CityDammam  City = "dammam"
	CityMakkah  City = "makkah"
	CityMadinah City = "madinah"
)

var cityNames = map[City]string{
	CityRiyadh:  "الرياض",
	CityJeddah:  "جدة",
	CityDammam:  "الدمام",
	CityMakkah:  "مكة",
	CityMadinah: "المدينة المنورة",
}

// AllCities returns the supported cities in display order.
func AllCities() []City {
	return []City{CityRiyadh, CityJeddah, CityDammam, CityMakkah, CityMadinah}
}

// ParseCity accepts either the English id (case-insensitive) or the Arabic
// display name of a supported city.
func ParseCity(s string) (City, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("city is required")
	}

	c := City(strings.ToLower(s))
	if _, ok := cityNames[c]; ok {
		return c, nil
	}

	for city, name := range cityNames {
		if name == s {
			return city, nil
		}
	}

	return "", fmt.Errorf("unsupported city %q", s)
}

func (c City) Valid() bool {
	_, ok := cityNames[c]
	return ok
}

func (c City) DisplayName() string {
	return cityNames[c]
}

type StoreID string

const (
	StoreDanube    StoreID = "danube"
	StoreCarrefour StoreID = "carrefour"
	StorePanda     StoreID = "panda"
	StoreLulu      StoreID = "lulu"
	StoreOthaim    StoreID = "othaim"
	StoreTamimi    StoreID = "tamimi"
)

// AllStores returns every known store in the fixed order used for
// tie-breaking when the caller does not choose a store order.
func AllStores() []StoreID {
	return []StoreID{StoreDanube, StoreCarrefour, StorePanda, StoreLulu, StoreOthaim, StoreTamimi}
}

// ParseStoreIDs splits a comma separated list. Ids are lowercased but not
// checked against the known set; unknown ids fail per work item.
func ParseStoreIDs(s string) []StoreID {
	var ids []StoreID
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			ids = append(ids, StoreID(part))
		}
	}
	return ids
}

// ProductQuery is one user-submitted product line.
type ProductQuery struct {
	Name string `json:"name"`
	City City   `json:"city"`
}

// CacheKey identifies a work item result. Product names are kept exactly
// as submitted.
type CacheKey struct {
	Product string  `json:"product"`
	Store   StoreID `json:"store"`
	City    City    `json:"city"`
}

func (k CacheKey) String() string {
	return k.Product + "|" + string(k.Store) + "|" + string(k.City)
}
