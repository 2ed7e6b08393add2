package catalog

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"

	"ecocart/internal/core"
	"ecocart/internal/observe"
	"ecocart/pkg/domain"
)

// DefaultLoadError is shown when a fetch fails without a service message.
const DefaultLoadError = "Failed to load products"

// Fetcher loads one listing page. *Client implements it.
type Fetcher interface {
	ListProducts(ctx context.Context, q Query) (domain.Paginated[domain.Product], error)
}

// Navigator replaces the current history entry with location.
type Navigator interface {
	Replace(location string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(location string)

// Replace calls f.
func (f NavigatorFunc) Replace(location string) { f(location) }

// State is a snapshot of the listing.
type State struct {
	Query    Query
	Location string
	// Result holds the latest successful page, ordered by Query.Sort.
	Result domain.Paginated[domain.Product]
	// Err is the user-visible message of the latest failed fetch.
	Err     string
	Loading bool
}

// Controller keeps the listing query, the URL, and the fetched page in step.
// Each fetch takes a generation number and only the newest generation may
// land, so an older response that completes late is dropped.
type Controller struct {
	fetcher Fetcher
	nav     Navigator
	hub     *observe.Hub
	path    string
	opts    core.Options

	mu         sync.Mutex
	query      Query
	location   string
	result     domain.Paginated[domain.Product]
	errMsg     string
	loading    bool
	loaded     bool
	generation uint64
}

// NewController builds a controller for the listing at path. A nil nav
// discards location updates and a nil hub gets a private one.
func NewController(fetcher Fetcher, nav Navigator, hub *observe.Hub, path string, opts ...core.Option) *Controller {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if hub == nil {
		hub = observe.NewHub()
	}
	q := DefaultQuery()
	return &Controller{
		fetcher:  fetcher,
		nav:      nav,
		hub:      hub,
		path:     path,
		opts:     core.ResolveOptions(opts...),
		query:    q,
		location: Location(path, q),
		result:   emptyPage(),
	}
}

// Subscribe registers fn for listing changes.
func (c *Controller) Subscribe(fn func(observe.Event)) func() {
	return c.hub.SubscribeTopic(observe.TopicCatalog, fn)
}

// Load adopts the query carried by a location, as on first render or
// back/forward navigation. It fetches unless the same page is already
// loaded. The sort survives navigation since it is not in the URL.
func (c *Controller) Load(ctx context.Context, values url.Values) error {
	next := QueryFromValues(values)
	c.mu.Lock()
	next.Sort = c.query.Sort
	needFetch := !c.loaded || !SameFetch(c.query, next)
	c.query = next
	c.location = Location(c.path, next)
	c.loaded = true
	c.mu.Unlock()
	if !needFetch {
		c.publish()
		return nil
	}
	return c.fetch(ctx)
}

// Update applies filter changes, replaces the location, and fetches when
// the request changed. A sort-only change reorders the current page without
// a fetch.
func (c *Controller) Update(ctx context.Context, updates ...Update) error {
	c.mu.Lock()
	prev := c.query
	next := Apply(prev, updates...)
	loc := Location(c.path, next)
	moved := loc != c.location
	c.query = next
	c.location = loc
	needFetch := !c.loaded || !SameFetch(prev, next)
	c.loaded = true
	c.mu.Unlock()

	if moved {
		c.nav.Replace(loc)
	}
	if needFetch {
		return c.fetch(ctx)
	}
	if prev.Sort != next.Sort {
		c.publish()
	}
	return nil
}

// Refresh re-issues the fetch for the current query.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return c.fetch(ctx)
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.result
	res.Items = SortProducts(c.result.Items, c.query.Sort)
	return State{
		Query:    c.query.clone(),
		Location: c.location,
		Result:   res,
		Err:      c.errMsg,
		Loading:  c.loading,
	}
}

func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	q := c.query.clone()
	c.loading = true
	c.mu.Unlock()
	c.publish()

	page, err := c.fetcher.ListProducts(ctx, q)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.opts.Logger.Debug("dropping stale listing response", "generation", gen)
		return nil
	}
	c.loading = false
	if err != nil {
		c.errMsg = userMessage(err)
	} else {
		c.errMsg = ""
		c.result = page
	}
	c.mu.Unlock()
	if err != nil {
		c.opts.Logger.Warn("listing fetch failed", "error", err)
	}
	c.publish()
	return err
}

func (c *Controller) publish() {
	c.hub.Publish(observe.Event{Topic: observe.TopicCatalog})
}

func userMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Message != "" || apiErr.Detail != "") {
		return apiErr.Error()
	}
	return DefaultLoadError
}

// SortProducts returns a copy of items ordered by key. Relevance keeps the
// service order; newest puts the highest id first.
func SortProducts(items []domain.Product, key SortKey) []domain.Product {
	out := make([]domain.Product, len(items))
	copy(out, items)
	switch key {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	return out
}

func emptyPage() domain.Paginated[domain.Product] {
	return domain.Paginated[domain.Product]{Items: []domain.Product{}, Page: 1, PageSize: PageSize, TotalPages: 1}
}
