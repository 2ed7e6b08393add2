package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"ecocart/internal/kv/core"
	"ecocart/internal/kv/kvtest"
)

func TestSQLiteStoreContract(t *testing.T) {
	kvtest.RunContract(t, func(t *testing.T) core.Store {
		s, err := New(filepath.Join(t.TempDir(), "kv.db"))
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Set(ctx, "ecocart.cart", []byte(`{"schema":1,"data":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, "ecocart.cart")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != `{"schema":1,"data":[]}` {
		t.Fatalf("unexpected payload %q", got)
	}
	if reopened.Path() != path || reopened.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected path or driver")
	}
}

func TestSQLiteStoreSharedBetweenHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")
	a, err := New(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer func() { _ = a.Close() }()
	b, err := New(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer func() { _ = b.Close() }()

	if err := a.Set(ctx, "ecocart.theme", []byte(`"dark"`)); err != nil {
		t.Fatalf("set via a: %v", err)
	}
	got, err := b.Get(ctx, "ecocart.theme")
	if err != nil || string(got) != `"dark"` {
		t.Fatalf("expected b to observe a's write, got %q %v", got, err)
	}
}
