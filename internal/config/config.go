// Package config resolves runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// KV holds the persistent key-value store selection.
type KV struct {
	Driver      string
	SQLitePath  string
	FSRoot      string
	PostgresDSN string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3Prefix    string
}

// Config is the resolved runtime configuration for both binaries.
type Config struct {
	Env           string
	APIBaseURL    string
	StorefrontURL string
	ListenAddr    string
	HTTPTimeout   time.Duration
	PollInterval  time.Duration
	LogLevel      string
	SecureCookies bool
	EnableTracing bool
	KV            KV
}

// Production reports whether ECOCART_ENV is production.
func (c Config) Production() bool { return c.Env == "production" }

// Load reads .env files (missing files are ignored) and the environment.
// Variables already present in the environment win over .env values.
func Load(files ...string) (Config, error) {
	if !strings.EqualFold(os.Getenv("ECOCART_ENV"), "production") {
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, f := range files {
			if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	env := strings.ToLower(get("ECOCART_ENV", "development"))
	cfg := Config{
		Env:           env,
		APIBaseURL:    strings.TrimRight(get("ECOCART_API_BASE_URL", "http://127.0.0.1:8080"), "/"),
		StorefrontURL: strings.TrimRight(get("ECOCART_STOREFRONT_URL", "http://127.0.0.1:3000"), "/"),
		ListenAddr:    get("ECOCART_LISTEN_ADDR", ":3000"),
		LogLevel:      get("ECOCART_LOG_LEVEL", "info"),
		KV: KV{
			Driver:      strings.ToLower(get("ECOCART_KV_DRIVER", "sqlite")),
			SQLitePath:  get("ECOCART_KV_SQLITE_PATH", "ecocart.db"),
			FSRoot:      get("ECOCART_KV_FS_ROOT", "./ecocart-state"),
			PostgresDSN: get("ECOCART_KV_POSTGRES_DSN", "postgres://localhost/ecocart?sslmode=disable"),
			S3Bucket:    get("ECOCART_KV_S3_BUCKET", ""),
			S3Region:    get("ECOCART_KV_S3_REGION", "us-east-1"),
			S3Endpoint:  get("ECOCART_KV_S3_ENDPOINT", ""),
			S3Prefix:    get("ECOCART_KV_S3_PREFIX", "ecocart/"),
		},
	}
	var err error
	if cfg.HTTPTimeout, err = parseDuration(get("ECOCART_HTTP_TIMEOUT", "10s"), "ECOCART_HTTP_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = parseDuration(get("ECOCART_POLL_INTERVAL", "500ms"), "ECOCART_POLL_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.KV.S3PathStyle, err = parseBool(get("ECOCART_KV_S3_PATH_STYLE", "false"), "ECOCART_KV_S3_PATH_STYLE"); err != nil {
		return Config{}, err
	}
	if cfg.SecureCookies, err = parseBool(get("ECOCART_SECURE_COOKIES", strconv.FormatBool(env == "production")), "ECOCART_SECURE_COOKIES"); err != nil {
		return Config{}, err
	}
	if cfg.EnableTracing, err = parseBool(get("ECOCART_ENABLE_TRACING", "false"), "ECOCART_ENABLE_TRACING"); err != nil {
		return Config{}, err
	}
	if cfg.KV.Driver == "s3" && cfg.KV.S3Bucket == "" {
		return Config{}, fmt.Errorf("ECOCART_KV_S3_BUCKET required for s3 driver")
	}
	return cfg, nil
}

func parseDuration(raw, key string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parseBool(raw, key string) (bool, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
