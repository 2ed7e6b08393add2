// Package catalog talks to the catalog service and keeps the product listing
// in step with the navigable URL query.
package catalog

import (
	"math"
	"net/url"
	"strconv"
)

// PageSize is the fixed number of products per listing page.
const PageSize = 12

// SortKey orders the visible page. It never leaves the client.
type SortKey string

// Sort keys offered by the listing.
const (
	SortRelevance SortKey = "relevance"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortNewest    SortKey = "newest"
)

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest:
		return true
	}
	return false
}

// URL parameter names recognized in the listing location.
const (
	paramText     = "q"
	paramCategory = "category_id"
	paramMinPrice = "min_price"
	paramMaxPrice = "max_price"
	paramPage     = "page"
)

// Query is the listing state carried in the URL. Nil pointers mean the
// filter is not applied.
type Query struct {
	FreeText   string
	CategoryID *int64
	MinPrice   *float64
	MaxPrice   *float64
	Page       int
	PageSize   int
	Sort       SortKey
}

// DefaultQuery is the unfiltered first page.
func DefaultQuery() Query {
	return Query{Page: 1, PageSize: PageSize, Sort: SortRelevance}
}

// QueryFromValues derives the listing query from URL parameters. Numeric
// filters that do not parse are dropped; a page that does not parse or is
// below 1 becomes 1.
func QueryFromValues(v url.Values) Query {
	q := DefaultQuery()
	q.FreeText = v.Get(paramText)
	if raw := v.Get(paramCategory); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			q.CategoryID = &id
		}
	}
	q.MinPrice = parsePrice(v.Get(paramMinPrice))
	q.MaxPrice = parsePrice(v.Get(paramMaxPrice))
	if p, err := strconv.Atoi(v.Get(paramPage)); err == nil && p >= 1 {
		q.Page = p
	}
	return q
}

func parsePrice(raw string) *float64 {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Values renders the URL parameters for q, omitting unset filters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.FreeText != "" {
		v.Set(paramText, q.FreeText)
	}
	if q.CategoryID != nil {
		v.Set(paramCategory, strconv.FormatInt(*q.CategoryID, 10))
	}
	if q.MinPrice != nil {
		v.Set(paramMinPrice, formatPrice(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		v.Set(paramMaxPrice, formatPrice(*q.MaxPrice))
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set(paramPage, strconv.Itoa(page))
	return v
}

func formatPrice(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Update is a partial change applied to a Query.
type Update func(*Query)

// SetFreeText replaces the search text and returns to the first page.
func SetFreeText(text string) Update {
	return func(q *Query) { q.FreeText = text; q.Page = 1 }
}

// SetCategory filters by category; nil clears the filter.
func SetCategory(id *int64) Update {
	return func(q *Query) { q.CategoryID = cloneInt(id); q.Page = 1 }
}

// SetMinPrice sets the lower price bound; nil clears it.
func SetMinPrice(p *float64) Update {
	return func(q *Query) { q.MinPrice = cloneFloat(p); q.Page = 1 }
}

// SetMaxPrice sets the upper price bound; nil clears it.
func SetMaxPrice(p *float64) Update {
	return func(q *Query) { q.MaxPrice = cloneFloat(p); q.Page = 1 }
}

// SetPage moves to page n, clamped to 1.
func SetPage(n int) Update {
	return func(q *Query) {
		if n < 1 {
			n = 1
		}
		q.Page = n
	}
}

// SetSort changes the local ordering. Unknown keys fall back to relevance.
func SetSort(k SortKey) Update {
	return func(q *Query) {
		if !k.Valid() {
			k = SortRelevance
		}
		q.Sort = k
	}
}

// ClearFilters resets every filter, the sort, and the page.
func ClearFilters() Update {
	return func(q *Query) { *q = DefaultQuery() }
}

// Apply returns current with updates applied in order.
func Apply(current Query, updates ...Update) Query {
	next := current.clone()
	for _, u := range updates {
		if u != nil {
			u(&next)
		}
	}
	next.PageSize = PageSize
	if next.Page < 1 {
		next.Page = 1
	}
	if !next.Sort.Valid() {
		next.Sort = SortRelevance
	}
	return next
}

// Location merges updates onto current and renders path?query.
func Location(path string, current Query, updates ...Update) string {
	next := Apply(current, updates...)
	enc := next.Values().Encode()
	if enc == "" {
		return path
	}
	return path + "?" + enc
}

// SameFetch reports whether a and b request the same page from the service.
// Sort is not part of the request.
func SameFetch(a, b Query) bool {
	return a.FreeText == b.FreeText &&
		equalInt(a.CategoryID, b.CategoryID) &&
		equalFloat(a.MinPrice, b.MinPrice) &&
		equalFloat(a.MaxPrice, b.MaxPrice) &&
		a.Page == b.Page
}

func (q Query) clone() Query {
	q.CategoryID = cloneInt(q.CategoryID)
	q.MinPrice = cloneFloat(q.MinPrice)
	q.MaxPrice = cloneFloat(q.MaxPrice)
	return q
}

func cloneInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
