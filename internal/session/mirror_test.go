package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
	"ecocart/pkg/domain"
)

var loginFixture = domain.LoginResponse{
	User:         domain.User{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Username: "ann", Email: "ann@example.com", Role: domain.RoleAdmin},
	AccessToken:  "access-1",
	RefreshToken: "refresh-1",
	TokenType:    "Bearer",
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMirrorSetDefaultsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMirror(kv.NewMemory(), nil, core.WithClock(clock))

	if err := m.Set(ctx, loginFixture); err != nil {
		t.Fatalf("set: %v", err)
	}
	tok, ok, err := m.Token(ctx)
	if err != nil || !ok {
		t.Fatalf("token = %v %v", ok, err)
	}
	if tok.ExpiresAt != 1_700_003_600 || tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if tok.UserID != "7c9e6679-7425-40de-944b-e07fc1f90ae7" || tok.Role != domain.RoleAdmin {
		t.Fatalf("unexpected identity %+v", tok)
	}
	if !m.Authenticated(ctx) {
		t.Fatalf("expected authenticated")
	}
	clock.now = clock.now.Add(time.Hour)
	if m.Authenticated(ctx) {
		t.Fatalf("expired token must not authenticate")
	}
	if got := ExpiresIn(tok, clock.now); got != 0 {
		t.Fatalf("remaining lifetime = %v", got)
	}
}

func TestMirrorHonoursExpiresIn(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	m := NewMirror(kv.NewMemory(), nil, core.WithClock(clock))
	resp := loginFixture
	resp.ExpiresIn = 60
	_ = m.Set(context.Background(), resp)
	tok, _, _ := m.Token(context.Background())
	if tok.ExpiresAt != 160 {
		t.Fatalf("expires at %d, want 160", tok.ExpiresAt)
	}
	if got := ExpiresIn(tok, clock.now); got != time.Minute {
		t.Fatalf("remaining lifetime = %v", got)
	}
}

func TestMirrorClearRemovesEveryKey(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	hub := observe.NewHub()
	m := NewMirror(store, hub)
	events := 0
	m.Subscribe(func(observe.Event) { events++ })

	_ = m.Set(ctx, loginFixture)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, err := store.Keys(ctx, kv.Namespace)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no session keys, got %v", keys)
	}
	if _, ok, _ := m.Token(ctx); ok {
		t.Fatalf("token still present")
	}
	if _, ok, _ := m.User(ctx); ok {
		t.Fatalf("user still present")
	}
	if events != 2 {
		t.Fatalf("expected 2 events, got %d", events)
	}
}

func TestMirrorRejectsMissingAccessToken(t *testing.T) {
	m := NewMirror(kv.NewMemory(), nil)
	if err := m.Set(context.Background(), domain.LoginResponse{}); err == nil {
		t.Fatalf("expected error for empty access token")
	}
}

func TestMirrorReadsLegacyValues(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	seed := map[string]string{
		kv.KeyAccessToken:  "eyJhbGciOi.legacy",
		kv.KeyRefreshToken: "refresh-legacy",
		kv.KeyTokenExpiry:  "1700003600",
		kv.KeyUser:         `{"id":"41","username":"bo","email":"bo@example.com","role":"user"}`,
	}
	for k, v := range seed {
		if err := store.Set(ctx, k, []byte(v)); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMirror(store, nil, core.WithClock(clock))
	tok, ok, err := m.Token(ctx)
	if err != nil || !ok {
		t.Fatalf("token = %v %v", ok, err)
	}
	want := domain.SessionToken{AccessToken: "eyJhbGciOi.legacy", RefreshToken: "refresh-legacy", ExpiresAt: 1_700_003_600, UserID: "41", Role: "user"}
	if tok != want {
		t.Fatalf("got %+v, want %+v", tok, want)
	}
	if !m.Authenticated(ctx) {
		t.Fatalf("legacy session should authenticate")
	}
}

func TestMirrorCorruptExpiryReadsAsUnset(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	m := NewMirror(store, nil)
	_ = m.Set(ctx, loginFixture)
	_ = store.Set(ctx, kv.KeyTokenExpiry, []byte("soon"))
	tok, ok, err := m.Token(ctx)
	if err != nil || !ok || tok.ExpiresAt != 0 {
		t.Fatalf("expected token with unknown expiry, got %+v %v %v", tok, ok, err)
	}
}

func TestLegacyUserIDs(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","role":"admin"}`, "7c9e6679-7425-40de-944b-e07fc1f90ae7"},
		{`{"id":"41","role":"user"}`, "41"},
		{`{"id":41,"role":"user"}`, "41"},
		{`{"role":"user"}`, ""},
	}
	for _, c := range cases {
		u, err := legacyUser([]byte(c.raw))
		if err != nil || u.ID != c.want {
			t.Fatalf("legacyUser(%s) = %+v, %v; want id %q", c.raw, u, err, c.want)
		}
	}
	if _, err := legacyUser([]byte(`{"id":{"n":1}}`)); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestMirrorReadsNumericIDsFromVersionedPayload(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if err := store.Set(ctx, kv.KeyUser, []byte(`{"schema":1,"data":{"id":12,"username":"ann","role":"admin"}}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	u, ok, err := NewMirror(store, nil).User(ctx)
	if err != nil || !ok || u.ID != "12" || u.Role != domain.RoleAdmin {
		t.Fatalf("user = %+v %v %v", u, ok, err)
	}
}

// failingSetKV fails writes to one key.
type failingSetKV struct {
	kv.Store
	key string
}

func (f failingSetKV) Set(ctx context.Context, key string, value []byte) error {
	if key == f.key {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func TestMirrorSetRollsBackPartialWrite(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	if err := NewMirror(mem, nil, core.WithClock(clock)).Set(ctx, loginFixture); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	m := NewMirror(failingSetKV{Store: mem, key: kv.KeyUser}, nil, core.WithClock(clock))
	next := loginFixture
	next.AccessToken = "access-2"
	next.User.Role = domain.RoleUser
	if err := m.Set(ctx, next); err == nil {
		t.Fatalf("expected write error")
	}
	if _, ok, err := m.Token(ctx); ok || err != nil {
		t.Fatalf("partial session must not survive: ok=%v err=%v", ok, err)
	}
	if m.Authenticated(ctx) {
		t.Fatalf("partial session must not authenticate")
	}
	for _, key := range []string{kv.KeyAccessToken, kv.KeyRefreshToken, kv.KeyTokenExpiry, kv.KeyUser} {
		if _, err := mem.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("%s left behind: %v", key, err)
		}
	}
}
