package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"ecocart/internal/catalog"
	"ecocart/internal/core"
	"ecocart/pkg/domain"
)

// Service commits and revokes a session across both representations: the
// server-set cookies and the client mirror.
type Service interface {
	Commit(ctx context.Context, creds domain.Credentials) (domain.LoginResponse, error)
	Revoke(ctx context.Context) error
}

// Exchange implements Service with one round trip to the storefront session
// endpoint. The server sets or expires the cookies and the response body is
// what the mirror stores.
type Exchange struct {
	base   string
	http   *http.Client
	mirror *Mirror
	opts   core.Options
}

var _ Service = (*Exchange)(nil)

// NewExchange builds an Exchange against the storefront at baseURL. A nil
// httpClient gets one with a cookie jar so the session cookies persist
// between calls.
func NewExchange(baseURL string, httpClient *http.Client, mirror *Mirror, opts ...core.Option) *Exchange {
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	return &Exchange{
		base:   strings.TrimRight(baseURL, "/"),
		http:   httpClient,
		mirror: mirror,
		opts:   core.ResolveOptions(opts...),
	}
}

// Mirror returns the client mirror kept in step by the exchange.
func (e *Exchange) Mirror() *Mirror { return e.mirror }

// Commit validates creds, posts them to the session endpoint, and mirrors
// the response. Nothing is mirrored when the exchange fails.
func (e *Exchange) Commit(ctx context.Context, creds domain.Credentials) (resp domain.LoginResponse, err error) {
	ctx, done := e.opts.Instrument(ctx, "session.commit")
	defer func() { done(err) }()
	if err = ValidateLogin(creds.Email, creds.Password); err != nil {
		return domain.LoginResponse{}, err
	}
	body, err := json.Marshal(creds)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/session", bytes.NewReader(body))
	if err != nil {
		return domain.LoginResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := e.http.Do(req)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("session exchange: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return domain.LoginResponse{}, catalog.ReadError(res)
	}
	if err = json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("decode session: %w", err)
	}
	if err = e.mirror.Set(ctx, resp); err != nil {
		return domain.LoginResponse{}, err
	}
	e.opts.Logger.Info("session committed", "user_id", resp.User.ID, "role", resp.User.Role)
	return resp, nil
}

// Revoke asks the server to expire the cookies and clears the mirror. The
// mirror is cleared even when the round trip fails; both failures are
// reported.
func (e *Exchange) Revoke(ctx context.Context) (err error) {
	ctx, done := e.opts.Instrument(ctx, "session.revoke")
	defer func() { done(err) }()
	remoteErr := e.expireRemote(ctx)
	clearErr := e.mirror.Clear(ctx)
	if remoteErr != nil {
		e.opts.Logger.Warn("session revoke round trip failed", "error", remoteErr)
	}
	return errors.Join(remoteErr, clearErr)
}

func (e *Exchange) expireRemote(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.base+"/session", nil)
	if err != nil {
		return err
	}
	res, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("session exchange: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return catalog.ReadError(res)
	}
	return nil
}
