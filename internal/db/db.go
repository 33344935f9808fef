// Package db defines the storage facade backing the result cache.
// Consumers depend on the narrow sub-interfaces, not on Store.
package db

import (
	"context"
	"time"
)

// Store is the full database facade.
type Store interface {
	Pinger
	KVStore
	SetStore
	Scanner
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVItem holds one key/value/ttl triple for pipelined SET.
type KVItem struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// KVStore provides key-value operations with TTL.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMulti(ctx context.Context, items []KVItem) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// SetStore provides set-membership operations (tag → member keys).
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Scanner enumerates keys by glob pattern via cursor SCAN.
type Scanner interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
}
