package stores

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/parser"
)

// Adapter knows how to search one storefront and read the first product
// price from its search page.
type Adapter interface {
	ID() models.StoreID
	DisplayName() string
	BuildURL(product string, city models.City) (string, error)
	// ReadySelector is present once the search results have rendered.
	ReadySelector() string
	// Extract always returns a usable result; err only explains a failed one.
	Extract(html, pageURL string) (models.FetchResult, error)
}

// UnknownStoreError is returned for store ids outside the registry.
type UnknownStoreError struct {
	ID models.StoreID
}

func (e *UnknownStoreError) Error() string {
	return fmt.Sprintf("unknown store %q", e.ID)
}

// ExtractionError explains why a page yielded no price.
type ExtractionError struct {
	Store  models.StoreID
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Store, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Store, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Rule is the structural pattern for one store's search results.
type Rule struct {
	// Container matches one product entry.
	Container string
	// Link matches the product anchor inside the container.
	Link string
	// Price matches the price element, looked up inside the anchor first
	// and then inside the container.
	Price string
}

// Descriptor is the static configuration of a storefront.
type Descriptor struct {
	ID     models.StoreID
	Name   string
	Origin string
	// SearchTemplate contains a single %s for the escaped product name.
	SearchTemplate string
	// CityParam, when set, adds the city as a query parameter.
	CityParam string
	Rule      Rule
}

// selectorStore implements Adapter for any storefront whose search page can
// be read with CSS selectors. Concrete stores embed it.
type selectorStore struct {
	desc Descriptor
	base *url.URL
}

func newSelectorStore(desc Descriptor) selectorStore {
	base, err := url.Parse(strings.TrimSuffix(desc.Origin, "/") + "/")
	if err != nil {
		panic(fmt.Sprintf("stores: invalid origin %q for %s: %v", desc.Origin, desc.ID, err))
	}
	return selectorStore{desc: desc, base: base}
}

func (s *selectorStore) ID() models.StoreID {
	return s.desc.ID
}

func (s *selectorStore) DisplayName() string {
	return s.desc.Name
}

func (s *selectorStore) ReadySelector() string {
	return s.desc.Rule.Container
}

func (s *selectorStore) Descriptor() Descriptor {
	return s.desc
}

func (s *selectorStore) BuildURL(product string, city models.City) (string, error) {
	if strings.TrimSpace(product) == "" {
		return "", fmt.Errorf("%s: product name is empty", s.desc.ID)
	}

	searchURL := fmt.Sprintf(s.desc.SearchTemplate, escapeQuery(product))

	if s.desc.CityParam != "" && city != "" {
		sep := "?"
		if strings.Contains(searchURL, "?") {
			sep = "&"
		}
		searchURL += sep + url.QueryEscape(s.desc.CityParam) + "=" + escapeQuery(string(city))
	}

	return searchURL, nil
}

func (s *selectorStore) Extract(html, pageURL string) (result models.FetchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = models.Failed(models.FailureExtraction)
			err = &ExtractionError{Store: s.desc.ID, Reason: fmt.Sprintf("panic during extraction: %v", r)}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return s.fail("failed to parse HTML", err)
	}

	containers := doc.Find(s.desc.Rule.Container)
	if containers.Length() == 0 {
		return s.fail(fmt.Sprintf("no %q element found", s.desc.Rule.Container), nil)
	}

	var (
		anchor    *goquery.Selection
		priceElem *goquery.Selection
	)
	containers.EachWithBreak(func(_ int, c *goquery.Selection) bool {
		a := c.Find(s.desc.Rule.Link).First()
		p := a.Find(s.desc.Rule.Price).First()
		if p.Length() == 0 {
			p = c.Find(s.desc.Rule.Price).First()
		}
		if p.Length() == 0 {
			return true
		}
		anchor, priceElem = a, p
		return false
	})

	if priceElem == nil {
		return s.fail(fmt.Sprintf("no %q element inside any product entry", s.desc.Rule.Price), nil)
	}

	price, err := parser.ParsePrice(priceElem.Text())
	if err != nil {
		return s.fail("invalid price", err)
	}
	if price.IsNegative() {
		return s.fail("negative price", nil)
	}

	href, _ := anchor.Attr("href")
	return models.Found(price, s.resolveLink(href, pageURL)), nil
}

func (s *selectorStore) fail(reason string, cause error) (models.FetchResult, error) {
	return models.Failed(models.FailureExtraction), &ExtractionError{Store: s.desc.ID, Reason: reason, Err: cause}
}

// resolveLink makes relative product links absolute against the store
// origin. Without a usable href the search page itself is the link.
func (s *selectorStore) resolveLink(href, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return pageURL
	}

	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	if ref.IsAbs() {
		return ref.String()
	}
	return s.base.ResolveReference(ref).String()
}

// escapeQuery percent-encodes spaces as %20 rather than "+".
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
