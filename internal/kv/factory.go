package kv

import (
	"context"
	"fmt"

	"ecocart/internal/config"
	fsstore "ecocart/internal/infra/kv/fs"
	memorystore "ecocart/internal/infra/kv/memory"
	pgstore "ecocart/internal/infra/kv/postgres"
	s3store "ecocart/internal/infra/kv/s3"
	sqlitestore "ecocart/internal/infra/kv/sqlite"
)

// Open selects a Store implementation from cfg.Driver (default sqlite).
func Open(ctx context.Context, cfg config.KV) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverSQLite)
	}
	var (
		store Store
		err   error
	)
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		store, err = wrap(fsstore.New(cfg.FSRoot))
	case DriverSQLite:
		store, err = wrap(sqlitestore.New(cfg.SQLitePath))
	case DriverPostgres:
		store, err = wrap(pgstore.New(ctx, cfg.PostgresDSN))
	case DriverS3:
		store, err = wrap(s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		}))
	default:
		return nil, fmt.Errorf("unknown kv driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s kv: %w", driver, err)
	}
	return store, nil
}

// wrap drops the typed nil a failed constructor returns.
func wrap[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests exposes the S3 driver over a fake transport for
// cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests("ecocart/") }
