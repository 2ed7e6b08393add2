package memory

import (
	"context"
	"testing"

	"ecocart/internal/kv/core"
	"ecocart/internal/kv/kvtest"
)

func TestMemoryStoreContract(t *testing.T) {
	kvtest.RunContract(t, func(*testing.T) core.Store { return New() })
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := New()
	in := []byte("abc")
	if err := s.Set(ctx, "k", in); err != nil {
		t.Fatalf("set: %v", err)
	}
	in[0] = 'z'
	out, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(out) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", out)
	}
	out[1] = 'z'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased store: %q", again)
	}
	if s.Driver() != core.DriverMemory || s.Close() != nil {
		t.Fatalf("unexpected driver or close result")
	}
}
