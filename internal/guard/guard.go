// Package guard authorizes navigation to privileged paths using only the
// session cookies, so the decision needs no client state and no round trip.
package guard

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ecocart/internal/core"
	"ecocart/internal/session"
	"ecocart/pkg/domain"
)

// Decision is the outcome of a guard check.
type Decision struct {
	Allow bool
	// Location is the redirect target when Allow is false.
	Location string
	// Reason is a short machine-readable cause, for logs.
	Reason string
}

// Guard protects every path under Prefix.
type Guard struct {
	Prefix    string
	Role      string
	LoginPath string
	NextParam string
	Clock     core.Clock
	Logger    core.Logger
}

// New returns the admin guard: /admin requires the admin role and sends
// everyone else to /auth/login?next=<path>.
func New(opts ...core.Option) Guard {
	o := core.ResolveOptions(opts...)
	return Guard{
		Prefix:    "/admin",
		Role:      domain.RoleAdmin,
		LoginPath: "/auth/login",
		NextParam: "next",
		Clock:     o.Clock,
		Logger:    o.Logger,
	}
}

// Protects reports whether path falls under the guarded prefix.
func (g Guard) Protects(path string) bool {
	if path == g.Prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimRight(g.Prefix, "/")+"/")
}

// Check evaluates r. Unprotected paths are always allowed.
func (g Guard) Check(r *http.Request) Decision {
	path := r.URL.Path
	if !g.Protects(path) {
		return Decision{Allow: true}
	}
	token, err := r.Cookie(session.CookieAccessToken)
	if err != nil || token.Value == "" {
		return g.deny(path, "missing_token")
	}
	if g.expired(r) {
		return g.deny(path, "expired_token")
	}
	role, err := r.Cookie(session.CookieUserRole)
	if err != nil || role.Value != g.Role {
		return g.deny(path, "role")
	}
	return Decision{Allow: true}
}

// expired reads token_exp when present. An unparsable value counts as
// expired.
func (g Guard) expired(r *http.Request) bool {
	c, err := r.Cookie(session.CookieTokenExpiry)
	if err != nil || c.Value == "" {
		return false
	}
	exp, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return true
	}
	now := time.Now()
	if g.Clock != nil {
		now = g.Clock.Now()
	}
	return now.Unix() >= exp
}

func (g Guard) deny(path, reason string) Decision {
	return Decision{Location: g.LoginLocation(path), Reason: reason}
}

// LoginLocation is the login path carrying path as the return target.
// Slashes in the target stay readable.
func (g Guard) LoginLocation(path string) string {
	next := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return g.LoginPath + "?" + g.NextParam + "=" + next
}

// Middleware redirects denied requests with 302 and passes the rest to next
// unmodified.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Check(r)
		if !d.Allow {
			if g.Logger != nil {
				g.Logger.Info("guard redirect", "path", r.URL.Path, "reason", d.Reason)
			}
			http.Redirect(w, r, d.Location, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
