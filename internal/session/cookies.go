package session

import (
	"net/http"
	"strconv"
	"time"

	"ecocart/pkg/domain"
)

// Cookie names set by the storefront session exchange.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieTokenExpiry  = "token_exp"
	CookieUserRole     = "user_role"
)

// CookieNames lists every session cookie.
var CookieNames = []string{CookieAccessToken, CookieRefreshToken, CookieTokenExpiry, CookieUserRole}

// SetSessionCookies writes the four session cookies for resp. The access
// token and role expire with the token; the refresh token and expiry live
// for the browser session. The role cookie is skipped when the user has no
// role.
func SetSessionCookies(w http.ResponseWriter, resp domain.LoginResponse, now time.Time, secure bool) {
	exp := now.Add(resp.Lifetime())
	set := func(name, value string, expires time.Time) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	set(CookieAccessToken, resp.AccessToken, exp)
	set(CookieRefreshToken, resp.RefreshToken, time.Time{})
	set(CookieTokenExpiry, strconv.FormatInt(exp.Unix(), 10), time.Time{})
	if resp.User.Role != "" {
		set(CookieUserRole, resp.User.Role, exp)
	}
}

// ExpireSessionCookies expires all four session cookies immediately.
func ExpireSessionCookies(w http.ResponseWriter) {
	for _, name := range CookieNames {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
