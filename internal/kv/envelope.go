package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ecocart/internal/core"
)

// ErrSchemaMismatch marks a payload whose schema version cannot be brought up
// to date. Readers treat it as absent.
var ErrSchemaMismatch = errors.New("kv: schema version mismatch")

// envelope is the on-disk shape of every versioned value.
type envelope struct {
	Schema int             `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// Upgrade rewrites a payload from one schema version to the next.
type Upgrade func(json.RawMessage) (json.RawMessage, error)

// Codec reads and writes one key as a schema-versioned JSON value. Payloads
// written before versioning existed are schema 0 and go through Legacy.
type Codec[T any] struct {
	Key     string
	Version int
	// Empty is returned for absent, unreadable, or discarded payloads.
	Empty func() T
	// Legacy decodes an unversioned payload. Nil treats it as version 1.
	Legacy func(raw []byte) (T, error)
	// Upgrades[n] moves a payload from version n to n+1.
	Upgrades map[int]Upgrade
	Logger   core.Logger
}

func (c Codec[T]) empty() T {
	if c.Empty != nil {
		return c.Empty()
	}
	var zero T
	return zero
}

func (c Codec[T]) logger() core.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return core.NopLogger()
}

// Read loads the value under Key. Absent keys and payloads that cannot be
// decoded or upgraded yield Empty with a nil error; only storage failures
// are returned.
func (c Codec[T]) Read(ctx context.Context, store Store) (T, bool, error) {
	raw, err := store.Get(ctx, c.Key)
	if errors.Is(err, ErrNotFound) {
		return c.empty(), false, nil
	}
	if err != nil {
		return c.empty(), false, fmt.Errorf("read %s: %w", c.Key, err)
	}
	v, err := c.Decode(raw)
	if err != nil {
		c.logger().Warn("discarding stored value", "key", c.Key, "error", err)
		return c.empty(), false, nil
	}
	return v, true, nil
}

// Decode interprets raw as an envelope or a legacy payload.
func (c Codec[T]) Decode(raw []byte) (T, error) {
	env, ok := parseEnvelope(raw)
	if !ok {
		return c.decodeLegacy(raw)
	}
	if env.Schema > c.Version {
		return c.empty(), fmt.Errorf("%w: stored %d, supported %d", ErrSchemaMismatch, env.Schema, c.Version)
	}
	if env.Schema == 0 {
		return c.decodeLegacy(env.Data)
	}
	return c.fromVersion(env.Schema, env.Data)
}

func (c Codec[T]) fromVersion(version int, data json.RawMessage) (T, error) {
	for v := version; v < c.Version; v++ {
		up, ok := c.Upgrades[v]
		if !ok {
			return c.empty(), fmt.Errorf("%w: no upgrade from %d", ErrSchemaMismatch, v)
		}
		var err error
		if data, err = up(data); err != nil {
			return c.empty(), fmt.Errorf("upgrade from %d: %w", v, err)
		}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return c.empty(), fmt.Errorf("decode %s: %w", c.Key, err)
	}
	return out, nil
}

// decodeLegacy handles schema 0. Without a Legacy hook the payload is
// assumed to have the version 1 shape.
func (c Codec[T]) decodeLegacy(raw []byte) (T, error) {
	if c.Legacy != nil {
		return c.Legacy(raw)
	}
	if !json.Valid(raw) {
		return c.empty(), fmt.Errorf("decode legacy %s: invalid json", c.Key)
	}
	return c.fromVersion(1, raw)
}

// Encode wraps v in an envelope at the current Version.
func (c Codec[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Key, err)
	}
	return json.Marshal(envelope{Schema: c.Version, Data: data})
}

// Write replaces the value under Key.
func (c Codec[T]) Write(ctx context.Context, store Store, v T) error {
	b, err := c.Encode(v)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, c.Key, b); err != nil {
		return fmt.Errorf("write %s: %w", c.Key, err)
	}
	return nil
}

// Clear removes Key.
func (c Codec[T]) Clear(ctx context.Context, store Store) error {
	if err := store.Delete(ctx, c.Key); err != nil {
		return fmt.Errorf("clear %s: %w", c.Key, err)
	}
	return nil
}

func parseEnvelope(raw []byte) (envelope, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return envelope{}, false
	}
	schemaRaw, hasSchema := probe["schema"]
	data, hasData := probe["data"]
	if !hasSchema || !hasData || len(probe) != 2 {
		return envelope{}, false
	}
	var schema int
	if err := json.Unmarshal(schemaRaw, &schema); err != nil || schema < 0 {
		return envelope{}, false
	}
	return envelope{Schema: schema, Data: data}, true
}
