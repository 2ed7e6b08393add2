// Package kv is the persistent key-value store (PKVS) used by the client
// stores. It re-exports the driver contract and selects a backend.
package kv

import (
	"ecocart/internal/kv/core"
)

type (
	// Driver identifies a kv backend.
	Driver = core.Driver
	// Store is the interface implemented by every backend.
	Store = core.Store
)

const (
	// DriverMemory is the in-process driver.
	DriverMemory = core.DriverMemory
	// DriverFilesystem is the one-file-per-key driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverSQLite is the embedded sqlite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the PostgreSQL driver.
	DriverPostgres = core.DriverPostgres
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
)

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidKey is returned for keys a driver cannot address.
	ErrInvalidKey = core.ErrInvalidKey
)

// Namespace prefixes every key the storefront owns.
const Namespace = "ecocart."

// Keys owned by the client stores.
const (
	KeyCart         = Namespace + "cart"
	KeyAccessToken  = Namespace + "access_token"
	KeyRefreshToken = Namespace + "refresh_token"
	KeyTokenExpiry  = Namespace + "token_exp"
	KeyUser         = Namespace + "user"
	KeyTheme        = Namespace + "theme"
)
