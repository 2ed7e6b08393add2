package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"ecocart/internal/catalog"
	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/session"
	"ecocart/pkg/domain"
)

var fixedNow = time.Unix(1_700_000_000, 0).UTC()

const rootID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

// fakeCatalog stands in for the catalog service.
func fakeCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"INVALID_CREDENTIALS","message":"Invalid email or password"}`))
			return
		}
		// The catalog service issues UUID account ids.
		_, _ = fmt.Fprintf(w, `{"user":{"id":%q,"username":"root","email":%q,"role":"admin","created_at":"2024-01-02T03:04:05Z"},`+
			`"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":600}`, rootID, creds.Email)
	})
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"page":1,"page_size":12,"total":0,"total_pages":1}`))
	})
	mux.HandleFunc("/api/products/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"missing token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"url":"/uploads/p.jpg"}`))
	})
	mux.HandleFunc("/uploads/p.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	api := fakeCatalog(t)
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg, "storefront_test")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	log := logrus.New()
	log.Out = io.Discard
	s, err := New(Config{
		APIBaseURL: api.URL,
		Catalog:    catalog.NewClient(api.URL, api.Client()),
		Log:        log,
		Gatherer:   reg,
		Options: []core.Option{
			core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })),
			core.WithMetricsRecorder(rec),
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func cookiesByName(resp *http.Response) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestNewRequiresCatalog(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without catalog client")
	}
	if _, err := New(Config{Catalog: catalog.NewClient("not a url", nil)}); err == nil {
		t.Fatalf("expected error for invalid catalog url")
	}
}

func TestSessionCreateSetsCookies(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/session", "application/json", strings.NewReader(`{"email":"root@example.com","password":"secret1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken != "access-1" || body.User.ID != rootID {
		t.Fatalf("unexpected body %+v %v", body, err)
	}
	cookies := cookiesByName(resp)
	if cookies[session.CookieAccessToken].Value != "access-1" || cookies[session.CookieUserRole].Value != "admin" {
		t.Fatalf("unexpected cookies %v", cookies)
	}
	if cookies[session.CookieTokenExpiry].Value != "1700000600" {
		t.Fatalf("unexpected expiry %q", cookies[session.CookieTokenExpiry].Value)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestSessionCreatePassesUpstreamErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/session", "application/json", strings.NewReader(`{"email":"root@example.com","password":"nope"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || len(resp.Cookies()) != 0 {
		t.Fatalf("expected 401 without cookies, got %d %v", resp.StatusCode, resp.Cookies())
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "INVALID_CREDENTIALS" || body["message"] != "Invalid email or password" {
		t.Fatalf("unexpected body %v", body)
	}

	resp, err = http.Post(srv.URL+"/session", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payload, got %d", resp.StatusCode)
	}
}

func TestSessionDeleteExpiresCookies(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/session", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()
	cookies := cookiesByName(resp)
	for _, name := range session.CookieNames {
		if c, ok := cookies[name]; !ok || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: %+v", name, c)
		}
	}
}

func TestAdminGuard(t *testing.T) {
	srv, _ := newTestServer(t)
	client := noRedirect()

	resp, err := client.Get(srv.URL + "/admin/anything")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/auth/login?next=/admin/anything" {
		t.Fatalf("expected redirect, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieAccessToken, Value: "access-1"})
	req.AddCookie(&http.Cookie{Name: session.CookieUserRole, Value: "admin"})
	req.AddCookie(&http.Cookie{Name: session.CookieTokenExpiry, Value: "1700000600"})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["role"] != "admin" || body["expires_at"] != "2023-11-14T22:23:20Z" {
		t.Fatalf("unexpected admin response %d %v", resp.StatusCode, body)
	}
}

func TestLoginLandingEchoesNext(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/auth/login?next=/admin/products")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["next"] != "/admin/products" {
		t.Fatalf("unexpected next %v", body)
	}

	resp2, err := http.Get(srv.URL + "/auth/login?next=https://evil.example")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	_ = json.NewDecoder(resp2.Body).Decode(&body)
	if body["next"] != "/" {
		t.Fatalf("off-site next must collapse to /, got %q", body["next"])
	}
}

func TestProxyHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	for path, want := range map[string]string{
		"/api/products":  `"page_size":12`,
		"/uploads/p.jpg": "jpeg-bytes",
		"/_healthz":      "ok",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), want) {
			t.Fatalf("%s: %d %q", path, resp.StatusCode, b)
		}
	}

	_, _ = http.Post(srv.URL+"/session", "application/json", strings.NewReader(`{"email":"root@example.com","password":"secret1"}`))
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), `storefront_test_operations_total{operation="storefront.session_create",status="success"} 1`) {
		t.Fatalf("expected session metric, got:\n%s", b)
	}
}

func TestAdminUploadForwardsToken(t *testing.T) {
	srv, _ := newTestServer(t)

	var img bytes.Buffer
	_ = png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "p.png")
	_, _ = part.Write(img.Bytes())
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: session.CookieAccessToken, Value: "access-1"})
	req.AddCookie(&http.Cookie{Name: session.CookieUserRole, Value: "admin"})
	resp, err := noRedirect().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK || out["url"] != "/uploads/p.jpg" {
		t.Fatalf("unexpected upload response %d %v", resp.StatusCode, out)
	}
}

func TestRenderHTTPErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	log := logrus.New()
	log.Out = io.Discard
	renderHTTPError(log, rec, wrapCause(), http.StatusBadGateway)
	var out map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if rec.Code != http.StatusBadGateway || out["error"] != "catalog service unreachable" {
		t.Fatalf("unexpected %d %v", rec.Code, out)
	}
}

func TestExchangeThroughStorefrontMirrorsUUIDUser(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	mirror := session.NewMirror(kv.NewMemory(), nil, core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })))
	ex := session.NewExchange(srv.URL, nil, mirror)

	resp, err := ex.Commit(ctx, domain.Credentials{Email: "root@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if resp.User.ID != rootID {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	tok, ok, err := mirror.Token(ctx)
	if err != nil || !ok {
		t.Fatalf("token = %v %v", ok, err)
	}
	if tok.UserID != rootID || tok.Role != domain.RoleAdmin || tok.AccessToken != "access-1" {
		t.Fatalf("unexpected mirrored token %+v", tok)
	}
	if !mirror.Authenticated(ctx) {
		t.Fatalf("expected authenticated mirror")
	}
}
