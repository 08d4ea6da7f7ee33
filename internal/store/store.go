// Package store provides the durable key-value stores that hold persisted
// workshop boards.
//
// Every driver implements KV. Values are opaque bytes keyed by workshop key;
// a missing key is reported as found == false, never as an error.
//
//	kv, err := store.Open(ctx, cfg.Store, logger)
//	data, ok, err := kv.Get(ctx, "spring-fair")
//	err = kv.Put(ctx, "spring-fair", data)
package store

import (
	"context"
	"errors"
)

// ErrUnknownDriver is returned by Open for an unsupported STORE_DRIVER.
var ErrUnknownDriver = errors.New("unknown store driver")

// KV is a durable key-value store.
type KV interface {
	// Get returns the value for key. ok is false when the key was never written.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
	// Close releases the store's resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)
