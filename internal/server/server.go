// Package server is the storefront HTTP surface: the session exchange that
// owns the auth cookies, the guarded admin area, and a pass-through proxy to
// the catalog service.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ecocart/internal/catalog"
	"ecocart/internal/core"
	"ecocart/internal/guard"
	"ecocart/internal/session"
	"ecocart/pkg/domain"
)

const maxUploadBytes = 10 << 20

// Config wires a Server.
type Config struct {
	// APIBaseURL is the catalog service root that /api and /uploads proxy to.
	APIBaseURL    string
	Catalog       *catalog.Client
	SecureCookies bool
	Log           *logrus.Logger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Options  []core.Option
}

// Server is the storefront HTTP server.
type Server struct {
	catalog  *catalog.Client
	guard    guard.Guard
	proxy    *httputil.ReverseProxy
	log      *logrus.Logger
	gatherer prometheus.Gatherer
	secure   bool
	opts     core.Options
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("server: catalog client required")
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = cfg.Catalog.BaseURL()
	}
	target, err := url.Parse(base)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.Errorf("server: invalid catalog url %q", base)
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	opts := core.ResolveOptions(cfg.Options...)
	s := &Server{
		catalog:  cfg.Catalog,
		guard:    guard.New(core.WithClock(opts.Clock), core.WithLogger(opts.Logger)),
		proxy:    httputil.NewSingleHostReverseProxy(target),
		log:      log,
		gatherer: gatherer,
		secure:   cfg.SecureCookies,
		opts:     opts,
	}
	s.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		renderHTTPError(requestLog(r), w, errors.Wrap(err, "catalog service unreachable"), http.StatusBadGateway)
	}
	return s, nil
}

// Router returns the routes without the outer middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/session", s.createSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/session", s.deleteSessionHandler).Methods(http.MethodDelete)
	r.HandleFunc("/admin", s.adminHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/admin/uploads", s.adminUploadHandler).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.loginLandingHandler).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/api/").Handler(s.proxy)
	r.PathPrefix("/uploads/").Handler(s.proxy)
	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "ok") })
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Handler is the full stack: routes behind the admin guard, request
// logging, and OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.Router()
	handler = s.guard.Middleware(handler)
	handler = &logHandler{log: s.log, next: handler}
	handler = otelhttp.NewHandler(handler, "storefront")
	return handler
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	ctx, done := s.opts.Instrument(r.Context(), "storefront.session_create")
	var err error
	defer func() { done(err) }()

	var creds domain.Credentials
	if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&creds); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid login payload"), http.StatusBadRequest)
		return
	}
	resp, err := s.catalog.Login(ctx, creds)
	if err != nil {
		var apiErr *catalog.APIError
		if errors.As(err, &apiErr) {
			log.WithField("status", apiErr.Status).Warn("login rejected")
			writeJSON(w, apiErr.Status, map[string]any{"code": apiErr.Code, "message": apiErr.Error()})
			return
		}
		log.WithField("error", err).Error("login failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": "INTERNAL_ERROR", "message": "Login failed"})
		return
	}
	session.SetSessionCookies(w, resp, s.opts.Clock.Now(), s.secure)
	log.WithFields(logrus.Fields{"user_id": resp.User.ID, "role": resp.User.Role}).Info("session created")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	session.ExpireSessionCookies(w)
	requestLog(r).Info("session revoked")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// adminHandler summarizes the session the guard admitted.
func (s *Server) adminHandler(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"role": cookieValue(r, session.CookieUserRole)}
	if exp, err := strconv.ParseInt(cookieValue(r, session.CookieTokenExpiry), 10, 64); err == nil {
		out["expires_at"] = time.Unix(exp, 0).UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminUploadHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	ctx, done := s.opts.Instrument(r.Context(), "storefront.admin_upload")
	var err error
	defer func() { done(err) }()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "missing file"), http.StatusBadRequest)
		return
	}
	defer file.Close()
	ref, err := s.catalog.UploadProductImage(ctx, cookieValue(r, session.CookieAccessToken), hdr.Filename, file)
	if err != nil {
		var apiErr *catalog.APIError
		if errors.As(err, &apiErr) {
			renderHTTPError(log, w, errors.Wrap(err, "upload rejected"), apiErr.Status)
			return
		}
		renderHTTPError(log, w, errors.Wrap(err, "could not upload image"), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": ref})
}

func (s *Server) loginLandingHandler(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") {
		next = "/"
	}
	writeJSON(w, http.StatusOK, map[string]any{"login": "/session", "next": next})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// renderHTTPError logs err with its stack and writes {"error": msg}, where
// msg drops the root cause text.
func renderHTTPError(log logrus.FieldLogger, w http.ResponseWriter, err error, code int) {
	log.WithField("error", fmt.Sprintf("%+v", err)).Error("request error")
	msg := err.Error()
	if c := errors.Cause(err); c != nil && c != err {
		if trimmed := strings.TrimSuffix(msg, ": "+c.Error()); trimmed != "" {
			msg = trimmed
		}
	}
	writeJSON(w, code, map[string]any{"error": msg})
}
