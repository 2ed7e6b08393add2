// Package session keeps the client-side mirror of the authenticated session
// and exchanges credentials with the storefront server, which owns the
// HttpOnly cookie representation of the same state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
	"ecocart/pkg/domain"
)

// SchemaVersion is the current on-disk schema of every mirrored value.
const SchemaVersion = 1

// Mirror is the PKVS-backed copy of the session kept for API convenience.
// Route authorization never reads it; see the guard package.
type Mirror struct {
	mu      sync.Mutex
	kv      kv.Store
	hub     *observe.Hub
	opts    core.Options
	access  kv.Codec[string]
	refresh kv.Codec[string]
	expiry  kv.Codec[int64]
	user    kv.Codec[domain.User]
}

// NewMirror builds a Mirror over store, publishing on hub. A nil hub gets a
// private one.
func NewMirror(store kv.Store, hub *observe.Hub, opts ...core.Option) *Mirror {
	if hub == nil {
		hub = observe.NewHub()
	}
	o := core.ResolveOptions(opts...)
	return &Mirror{
		kv:   store,
		hub:  hub,
		opts: o,
		access: kv.Codec[string]{
			Key: kv.KeyAccessToken, Version: SchemaVersion, Legacy: legacyString, Logger: o.Logger,
		},
		refresh: kv.Codec[string]{
			Key: kv.KeyRefreshToken, Version: SchemaVersion, Legacy: legacyString, Logger: o.Logger,
		},
		expiry: kv.Codec[int64]{
			Key: kv.KeyTokenExpiry, Version: SchemaVersion, Legacy: legacyEpoch, Logger: o.Logger,
		},
		user: kv.Codec[domain.User]{
			Key: kv.KeyUser, Version: SchemaVersion, Legacy: legacyUser, Logger: o.Logger,
		},
	}
}

// Subscribe registers fn for session changes.
func (m *Mirror) Subscribe(fn func(observe.Event)) func() {
	return m.hub.SubscribeTopic(observe.TopicSession, fn)
}

// Set mirrors a successful login. The expiry is now plus the response
// lifetime.
func (m *Mirror) Set(ctx context.Context, resp domain.LoginResponse) (err error) {
	ctx, done := m.opts.Instrument(ctx, "session.set")
	defer func() { done(err) }()
	if strings.TrimSpace(resp.AccessToken) == "" {
		return errors.New("session: login response has no access token")
	}
	exp := m.opts.Clock.Now().Add(resp.Lifetime()).Unix()

	m.mu.Lock()
	err = errors.Join(
		m.access.Write(ctx, m.kv, resp.AccessToken),
		m.refresh.Write(ctx, m.kv, resp.RefreshToken),
		m.expiry.Write(ctx, m.kv, exp),
		m.user.Write(ctx, m.kv, resp.User),
	)
	if err != nil {
		// A partial write would pair the new token with a stale expiry or
		// user; fall back to signed out.
		if clearErr := m.clearLocked(ctx); clearErr != nil {
			err = errors.Join(err, clearErr)
		}
	}
	m.mu.Unlock()
	m.hub.Publish(observe.Event{Topic: observe.TopicSession, Key: kv.KeyAccessToken})
	if err != nil {
		return fmt.Errorf("mirror session: %w", err)
	}
	return nil
}

// Clear removes the four mirrored values. Cookies are cleared separately by
// the storefront server.
func (m *Mirror) Clear(ctx context.Context) (err error) {
	ctx, done := m.opts.Instrument(ctx, "session.clear")
	defer func() { done(err) }()
	m.mu.Lock()
	err = m.clearLocked(ctx)
	m.mu.Unlock()
	m.hub.Publish(observe.Event{Topic: observe.TopicSession, Key: kv.KeyAccessToken})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// clearLocked removes the four mirrored keys. m.mu must be held.
func (m *Mirror) clearLocked(ctx context.Context) error {
	return errors.Join(
		m.access.Clear(ctx, m.kv),
		m.refresh.Clear(ctx, m.kv),
		m.expiry.Clear(ctx, m.kv),
		m.user.Clear(ctx, m.kv),
	)
}

// Token returns the mirrored token. The boolean is false when no access
// token is stored.
func (m *Mirror) Token(ctx context.Context) (domain.SessionToken, bool, error) {
	access, ok, err := m.access.Read(ctx, m.kv)
	if err != nil || !ok || access == "" {
		return domain.SessionToken{}, false, err
	}
	tok := domain.SessionToken{AccessToken: access}
	if tok.RefreshToken, _, err = m.refresh.Read(ctx, m.kv); err != nil {
		return domain.SessionToken{}, false, err
	}
	if tok.ExpiresAt, _, err = m.expiry.Read(ctx, m.kv); err != nil {
		return domain.SessionToken{}, false, err
	}
	u, found, err := m.user.Read(ctx, m.kv)
	if err != nil {
		return domain.SessionToken{}, false, err
	}
	if found {
		tok.UserID = u.ID
		tok.Role = u.Role
	}
	return tok, true, nil
}

// User returns the cached account summary.
func (m *Mirror) User(ctx context.Context) (domain.User, bool, error) {
	return m.user.Read(ctx, m.kv)
}

// Authenticated reports whether an unexpired access token is mirrored.
// Storage failures count as signed out.
func (m *Mirror) Authenticated(ctx context.Context) bool {
	tok, ok, err := m.Token(ctx)
	if err != nil {
		m.opts.Logger.Warn("session mirror unreadable", "error", err)
		return false
	}
	return ok && !tok.Expired(m.opts.Clock.Now())
}

// legacyString accepts the bare token strings written before values were
// wrapped in an envelope.
func legacyString(raw []byte) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", errors.New("empty token")
	}
	return v, nil
}

func legacyEpoch(raw []byte) (int64, error) {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token expiry: %w", err)
	}
	return n, nil
}

// legacyUser reads the bare user objects written before values were wrapped
// in an envelope. Numeric ids are accepted by domain.User.
func legacyUser(raw []byte) (domain.User, error) {
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ExpiresIn is the remaining lifetime of tok at now, never negative.
func ExpiresIn(tok domain.SessionToken, now time.Time) time.Duration {
	if tok.ExpiresAt == 0 {
		return 0
	}
	d := time.Unix(tok.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
