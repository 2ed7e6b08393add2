package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ecocart/internal/config"
)

func testConfig(t *testing.T, overrides map[string]string) config.Config {
	t.Helper()
	cfg, err := config.FromLookup(func(key string) (string, bool) {
		v, ok := overrides[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestBuildHandlerServesHealthAndMetrics(t *testing.T) {
	log := newDiscardLogger()
	handler, cleanup, err := buildHandler(testConfig(t, map[string]string{"ECOCART_ENABLE_TRACING": "true"}), log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer cleanup()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	for path, want := range map[string]string{"/_healthz": "ok", "/metrics": "go_goroutines"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(b), want) {
			t.Fatalf("%s: missing %q", path, want)
		}
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	prev := loadConfig
	defer func() { loadConfig = prev }()
	loadConfig = func() (config.Config, error) {
		return testConfig(t, map[string]string{"ECOCART_LISTEN_ADDR": "127.0.0.1:0"}), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var stderr bytes.Buffer
	if code := run(ctx, &stderr); code != 0 {
		t.Fatalf("expected clean shutdown, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "shutting down") {
		t.Fatalf("expected shutdown log, got %s", stderr.String())
	}
}

func TestRunReportsConfigErrors(t *testing.T) {
	prev := loadConfig
	defer func() { loadConfig = prev }()
	loadConfig = func() (config.Config, error) {
		return config.FromLookup(func(key string) (string, bool) {
			if key == "ECOCART_HTTP_TIMEOUT" {
				return "never", true
			}
			return "", false
		})
	}
	var stderr bytes.Buffer
	if code := run(context.Background(), &stderr); code != 1 || !strings.Contains(stderr.String(), "config:") {
		t.Fatalf("expected config failure, got %d %q", code, stderr.String())
	}
}
