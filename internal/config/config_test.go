package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.KV.Driver != "sqlite" || cfg.KV.SQLitePath != "ecocart.db" {
		t.Fatalf("unexpected kv defaults: %+v", cfg.KV)
	}
	if cfg.PollInterval != 500*time.Millisecond || cfg.HTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.PollInterval, cfg.HTTPTimeout)
	}
	if cfg.SecureCookies || cfg.Production() {
		t.Fatalf("development defaults must not force secure cookies")
	}
	if cfg.APIBaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected api base %q", cfg.APIBaseURL)
	}
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"ECOCART_ENV":              "Production",
		"ECOCART_API_BASE_URL":     "https://api.example.com/",
		"ECOCART_KV_DRIVER":        "S3",
		"ECOCART_KV_S3_BUCKET":     "state",
		"ECOCART_KV_S3_PATH_STYLE": "true",
		"ECOCART_POLL_INTERVAL":    "250ms",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if !cfg.Production() || !cfg.SecureCookies {
		t.Fatalf("production must default to secure cookies: %+v", cfg)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.KV.Driver != "s3" || cfg.KV.S3Bucket != "state" || !cfg.KV.S3PathStyle {
		t.Fatalf("unexpected kv: %+v", cfg.KV)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", cfg.PollInterval)
	}
}

func TestFromLookupErrors(t *testing.T) {
	cases := []map[string]string{
		{"ECOCART_HTTP_TIMEOUT": "soon"},
		{"ECOCART_POLL_INTERVAL": "-1s"},
		{"ECOCART_SECURE_COOKIES": "maybe"},
		{"ECOCART_KV_DRIVER": "s3"},
	}
	for _, env := range cases {
		if _, err := FromLookup(lookupFrom(env)); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("ECOCART_LISTEN_ADDR=:9999\nECOCART_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ECOCART_LOG_LEVEL", "warn")
	t.Setenv("ECOCART_LISTEN_ADDR", "")
	if err := os.Unsetenv("ECOCART_LISTEN_ADDR"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("expected listen addr from file, got %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("environment must win over file, got %q", cfg.LogLevel)
	}
}
