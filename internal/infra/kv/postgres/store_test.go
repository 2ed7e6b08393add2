package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"ecocart/internal/infra/kv/postgres/testutil"
	"ecocart/internal/kv/core"
	"ecocart/internal/kv/kvtest"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	s, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, conn
}

func TestPostgresStoreContract(t *testing.T) {
	kvtest.RunContract(t, func(t *testing.T) core.Store {
		s, _ := openStub(t)
		return s
	})
}

func TestNewEnsuresStateTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.Execs)
	}
}

func TestSetUpsertsSingleRow(t *testing.T) {
	ctx := context.Background()
	s, conn := openStub(t)
	for _, v := range []string{"a", "b"} {
		if err := s.Set(ctx, "ecocart.cart", []byte(v)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	rows := conn.Rows("state")
	if len(rows) != 1 {
		t.Fatalf("expected one row after upsert, got %d", len(rows))
	}
	if string(rows[0]["payload"].([]byte)) != "b" {
		t.Fatalf("unexpected payload %v", rows[0]["payload"])
	}
}

func TestNewPropagatesOpenAndPingErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
	if _, err := New(context.Background(), "dsn"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := New(context.Background(), "dsn"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestSetSurfacesTransactionFailures(t *testing.T) {
	ctx := context.Background()
	s, conn := openStub(t)

	conn.FailBegin = true
	if err := s.Set(ctx, "k", []byte("v")); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	conn.FailBegin = false

	conn.FailCommit = true
	if err := s.Set(ctx, "k", []byte("v")); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	conn.FailCommit = false

	conn.FailQuery = true
	if _, err := s.Keys(ctx, ""); err == nil {
		t.Fatalf("expected keys error")
	}
	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected query error distinct from not found, got %v", err)
	}
}
