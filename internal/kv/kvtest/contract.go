// Package kvtest holds the behavioural contract every kv driver must satisfy.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"ecocart/internal/kv/core"
)

// RunContract exercises open against the shared Store semantics. open must
// return an empty store on each call.
func RunContract(t *testing.T, open func(t *testing.T) core.Store) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(context.Background(), "ecocart.cart"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		if err := s.Set(ctx, "ecocart.cart", []byte(`[1]`)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "ecocart.cart", []byte(`{"schema":1,"data":[]}`)); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		got, err := s.Get(ctx, "ecocart.cart")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !bytes.Equal(got, []byte(`{"schema":1,"data":[]}`)) {
			t.Fatalf("unexpected value %q", got)
		}
	})

	t.Run("delete idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		if err := s.Set(ctx, "ecocart.theme", []byte(`"dark"`)); err != nil {
			t.Fatalf("set: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.Delete(ctx, "ecocart.theme"); err != nil {
				t.Fatalf("delete #%d: %v", i, err)
			}
		}
		if _, err := s.Get(ctx, "ecocart.theme"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("keys by prefix", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for _, k := range []string{"ecocart.user", "ecocart.access_token", "other.key"} {
			if err := s.Set(ctx, k, []byte(`"x"`)); err != nil {
				t.Fatalf("set %s: %v", k, err)
			}
		}
		keys, err := s.Keys(ctx, "ecocart.")
		if err != nil {
			t.Fatalf("keys: %v", err)
		}
		want := []string{"ecocart.access_token", "ecocart.user"}
		if !reflect.DeepEqual(keys, want) {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		s := open(t)
		if err := s.Set(context.Background(), "", []byte("x")); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})
}
