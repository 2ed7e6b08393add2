// Package observe is the reactive bridge between the client stores and
// whatever renders them. Mutators publish on a Hub after persisting; a Poller
// surfaces writes made by other processes sharing the same kv store.
package observe

import (
	"sort"
	"sync"
)

// Topics published by the storefront stores.
const (
	TopicCart    = "cart"
	TopicSession = "session"
	TopicCatalog = "catalog"
	TopicTheme   = "theme"
)

// Event describes a state change.
type Event struct {
	Topic string
	// Key is the kv key that changed, when the change was persisted.
	Key string
	// External is set when the change was observed in storage rather than
	// made through this process.
	External bool
}

type subscriber struct {
	topic string
	fn    func(Event)
}

// Hub fans events out to subscribers synchronously, in subscription order.
// The zero value is ready to use.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscriber
}

// NewHub returns an empty Hub.
func NewHub() *Hub { return &Hub{} }

// Subscribe registers fn for every event. The returned function removes the
// subscription and is safe to call more than once.
func (h *Hub) Subscribe(fn func(Event)) func() {
	return h.SubscribeTopic("", fn)
}

// SubscribeTopic registers fn for events on topic. An empty topic matches
// everything.
func (h *Hub) SubscribeTopic(topic string, fn func(Event)) func() {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[uint64]subscriber)
	}
	id := h.next
	h.next++
	h.subs[id] = subscriber{topic: topic, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers e to matching subscribers. Subscribers run on the caller's
// goroutine without the hub lock held, so they may subscribe or unsubscribe.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.subs))
	for id, s := range h.subs {
		if s.topic == "" || s.topic == e.Topic {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id].fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
