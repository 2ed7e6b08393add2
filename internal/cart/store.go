// Package cart implements the persisted shopping cart. Every mutation reads
// the full snapshot from the kv store, applies the change, writes the full
// snapshot back, and then notifies subscribers.
package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
	"ecocart/pkg/domain"
)

// SchemaVersion is the current on-disk cart schema.
const SchemaVersion = 1

var (
	// ErrInvalidProduct rejects products that cannot be priced.
	ErrInvalidProduct = errors.New("cart: invalid product")
	// ErrEmptyCart is returned by Checkout when there is nothing to buy.
	ErrEmptyCart = errors.New("cart: empty")
)

// Store owns the cart key. Mutations from one Store apply in call order;
// concurrent writers in other processes race with last-writer-wins.
type Store struct {
	mu    sync.Mutex
	kv    kv.Store
	hub   *observe.Hub
	codec kv.Codec[[]domain.CartItem]
	opts  core.Options
}

// NewStore builds a cart over store, publishing on hub. A nil hub gets a
// private one.
func NewStore(store kv.Store, hub *observe.Hub, opts ...core.Option) *Store {
	if hub == nil {
		hub = observe.NewHub()
	}
	o := core.ResolveOptions(opts...)
	return &Store{
		kv:   store,
		hub:  hub,
		opts: o,
		codec: kv.Codec[[]domain.CartItem]{
			Key:     kv.KeyCart,
			Version: SchemaVersion,
			Empty:   func() []domain.CartItem { return []domain.CartItem{} },
			Logger:  o.Logger,
		},
	}
}

// Subscribe registers fn for cart changes.
func (s *Store) Subscribe(fn func(observe.Event)) func() {
	return s.hub.SubscribeTopic(observe.TopicCart, fn)
}

// Items returns the cart lines in insertion order. Unreadable payloads read
// as an empty cart.
func (s *Store) Items(ctx context.Context) ([]domain.CartItem, error) {
	return s.load(ctx)
}

// Add puts quantity units of p in the cart, summing with an existing line.
// A quantity below 1 adds a single unit.
func (s *Store) Add(ctx context.Context, p domain.Product, quantity int) (err error) {
	ctx, done := s.opts.Instrument(ctx, "cart.add")
	defer func() { done(err) }()
	if err := validateProduct(p); err != nil {
		return err
	}
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].Product.ID == p.ID {
				items[i].Quantity += quantity
				return items, true
			}
		}
		return append(items, domain.CartItem{Product: domain.SnapshotOf(p), Quantity: quantity}), true
	})
}

// SetQuantity replaces the quantity of an existing line, clamped to at
// least 1. Unknown products are ignored.
func (s *Store) SetQuantity(ctx context.Context, productID int64, quantity int) (err error) {
	ctx, done := s.opts.Instrument(ctx, "cart.set_quantity")
	defer func() { done(err) }()
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].Product.ID == productID {
				if items[i].Quantity == quantity {
					return items, false
				}
				items[i].Quantity = quantity
				return items, true
			}
		}
		return items, false
	})
}

// Remove drops the line for productID if present.
func (s *Store) Remove(ctx context.Context, productID int64) (err error) {
	ctx, done := s.opts.Instrument(ctx, "cart.remove")
	defer func() { done(err) }()
	return s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		out := items[:0]
		removed := false
		for _, it := range items {
			if it.Product.ID == productID {
				removed = true
				continue
			}
			out = append(out, it)
		}
		return out, removed
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, done := s.opts.Instrument(ctx, "cart.clear")
	defer func() { done(err) }()
	return s.mutate(ctx, func([]domain.CartItem) ([]domain.CartItem, bool) {
		return []domain.CartItem{}, true
	})
}

// Total is the sum of price times quantity over all lines, computed on
// every call.
func (s *Store) Total(ctx context.Context) (float64, error) {
	items, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return total(items), nil
}

// Count is the number of units in the cart.
func (s *Store) Count(ctx context.Context) (int, error) {
	items, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n, nil
}

// Checkout snapshots the cart into a receipt and clears it. No payment is
// taken.
func (s *Store) Checkout(ctx context.Context) (order domain.Order, err error) {
	ctx, done := s.opts.Instrument(ctx, "cart.checkout")
	defer func() { done(err) }()
	err = s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		if len(items) == 0 {
			return items, false
		}
		lines := make([]domain.CartItem, len(items))
		copy(lines, items)
		order = domain.Order{Lines: lines, Total: total(lines), PlacedAt: s.opts.Clock.Now()}
		return []domain.CartItem{}, true
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(order.Lines) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	s.opts.Logger.Info("checkout placed", "lines", len(order.Lines), "total", order.Total)
	return order, nil
}

// mutate runs fn over the persisted snapshot under the store lock. fn
// reports whether anything changed; unchanged snapshots are neither written
// nor published.
func (s *Store) mutate(ctx context.Context, fn func([]domain.CartItem) ([]domain.CartItem, bool)) error {
	s.mu.Lock()
	items, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next, changed := fn(items)
	if changed {
		err = s.codec.Write(ctx, s.kv, next)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	if changed {
		s.hub.Publish(observe.Event{Topic: observe.TopicCart, Key: kv.KeyCart})
	}
	return nil
}

func (s *Store) load(ctx context.Context) ([]domain.CartItem, error) {
	items, _, err := s.codec.Read(ctx, s.kv)
	if err != nil {
		return nil, err
	}
	return normalize(items), nil
}

// normalize restores the line invariants on payloads written elsewhere:
// one line per product and quantities of at least 1.
func normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if i, ok := index[it.Product.ID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.Product.ID] = len(out)
		out = append(out, it)
	}
	return out
}

func total(items []domain.CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Subtotal()
	}
	return sum
}

func validateProduct(p domain.Product) error {
	if p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return fmt.Errorf("%w: price %v", ErrInvalidProduct, p.Price)
	}
	return nil
}
