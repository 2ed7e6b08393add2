package kv

import (
	"context"
	"errors"

	"ecocart/internal/core"
)

// observedStore reports every driver call through the core instrumentation
// hooks. A miss on Get counts as success.
type observedStore struct {
	Store
	opts core.Options
}

// Observe wraps store with metrics, tracing, and error logging.
func Observe(store Store, opts ...core.Option) Store {
	return &observedStore{Store: store, opts: core.ResolveOptions(opts...)}
}

func (s *observedStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, done := s.opts.Instrument(ctx, "kv.get")
	v, err := s.Store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		done(nil)
		return v, err
	}
	s.report("get", key, err)
	done(err)
	return v, err
}

func (s *observedStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, done := s.opts.Instrument(ctx, "kv.set")
	err := s.Store.Set(ctx, key, value)
	s.report("set", key, err)
	done(err)
	return err
}

func (s *observedStore) Delete(ctx context.Context, key string) error {
	ctx, done := s.opts.Instrument(ctx, "kv.delete")
	err := s.Store.Delete(ctx, key)
	s.report("delete", key, err)
	done(err)
	return err
}

func (s *observedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, done := s.opts.Instrument(ctx, "kv.keys")
	keys, err := s.Store.Keys(ctx, prefix)
	s.report("keys", prefix, err)
	done(err)
	return keys, err
}

func (s *observedStore) report(op, key string, err error) {
	if err != nil {
		s.opts.Logger.Error("kv operation failed", "op", op, "key", key, "driver", string(s.Store.Driver()), "error", err)
	}
}
