package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ecocart/internal/core"
	"ecocart/internal/kv"
)

// DefaultPollInterval matches the cadence other tabs were historically
// checked at.
const DefaultPollInterval = 500 * time.Millisecond

// Poller watches kv keys for changes written by other processes and
// publishes them as external events. Local writes are folded into the
// baseline through the hub so they are not reported twice.
type Poller struct {
	store    kv.Store
	hub      *Hub
	interval time.Duration
	opts     core.Options

	// baseline orders reads with their updates so a slow read never
	// replaces a fresher baseline. It is never held while publishing.
	baseline sync.Mutex
	mu       sync.Mutex
	topics   map[string]string
	last     map[string][]byte
	primed   map[string]bool
	detach   func()
}

// NewPoller builds a poller publishing on hub. A non-positive interval
// selects DefaultPollInterval.
func NewPoller(store kv.Store, hub *Hub, interval time.Duration, opts ...core.Option) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		store:    store,
		hub:      hub,
		interval: interval,
		opts:     core.ResolveOptions(opts...),
		topics:   make(map[string]string),
		last:     make(map[string][]byte),
		primed:   make(map[string]bool),
	}
	p.detach = hub.Subscribe(p.onLocal)
	return p
}

// Watch adds key under topic. The first poll records a baseline without
// publishing.
func (p *Poller) Watch(key, topic string) {
	p.mu.Lock()
	p.topics[key] = topic
	p.mu.Unlock()
}

// Interval returns the polling period.
func (p *Poller) Interval() time.Duration { return p.interval }

// Poll checks every watched key once.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]string, 0, len(p.topics))
	for k := range p.topics {
		keys = append(keys, k)
	}
	p.mu.Unlock()
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := p.check(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) check(ctx context.Context, key string) error {
	p.baseline.Lock()
	current, err := p.read(ctx, key)
	if err != nil {
		p.baseline.Unlock()
		return err
	}
	p.mu.Lock()
	topic := p.topics[key]
	changed := p.primed[key] && !bytes.Equal(p.last[key], current)
	p.last[key] = current
	p.primed[key] = true
	p.mu.Unlock()
	p.baseline.Unlock()

	if changed {
		p.opts.Logger.Debug("external change observed", "key", key, "topic", topic)
		p.hub.Publish(Event{Topic: topic, Key: key, External: true})
	}
	return nil
}

func (p *Poller) read(ctx context.Context, key string) ([]byte, error) {
	v, err := p.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", key, err)
	}
	return v, nil
}

// onLocal refreshes the baseline for a key this process just wrote.
func (p *Poller) onLocal(e Event) {
	if e.External || e.Key == "" {
		return
	}
	p.mu.Lock()
	_, watched := p.topics[e.Key]
	p.mu.Unlock()
	if !watched {
		return
	}
	p.baseline.Lock()
	defer p.baseline.Unlock()
	current, err := p.read(context.Background(), e.Key)
	if err != nil {
		p.opts.Logger.Warn("baseline refresh failed", "key", e.Key, "error", err)
		return
	}
	p.mu.Lock()
	p.last[e.Key] = current
	p.primed[e.Key] = true
	p.mu.Unlock()
}

// Run polls until ctx is done. Poll errors are logged and do not stop the
// loop.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Poll(ctx); err != nil {
		p.opts.Logger.Warn("poll failed", "error", err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.opts.Logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// Close detaches the poller from the hub.
func (p *Poller) Close() { p.detach() }
