// Package core defines the persistent key-value contract implemented by the
// infra drivers and wrapped by the kv facade.
package core

import (
	"context"
	"errors"
)

// Driver identifies a concrete key-value backend.
type Driver string

const (
	// DriverMemory keeps values in process memory (tests, ephemeral sessions).
	DriverMemory Driver = "memory"
	// DriverFilesystem stores one file per key under a root directory.
	DriverFilesystem Driver = "fs"
	// DriverSQLite stores values in an embedded sqlite file (default).
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores values in a PostgreSQL table.
	DriverPostgres Driver = "postgres"
	// DriverS3 stores values as objects in an S3 / MinIO bucket.
	DriverS3 Driver = "s3"
)

// Store is a string-keyed store of opaque values that survives process
// restarts. Writes replace the whole value; last writer wins.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Driver() Driver
	Close() error
}

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("kv: key not found")

// ErrInvalidKey is returned for empty keys or keys a driver cannot address.
var ErrInvalidKey = errors.New("kv: invalid key")
