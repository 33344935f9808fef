// Package analytics persists query-log records in the cache store. Records
// are write-only from the API's point of view; downstream reporting reads
// them out of band.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
)

const keyPrefix = "analytics:query:"

// DefaultRetention is how long query records stay readable.
const DefaultRetention = 30 * 24 * time.Hour

// store is the consumer interface for analytics operations (ISP).
type store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store writes query records to DB with a retention TTL.
type Store struct {
	store     store
	retention time.Duration
}

// New creates an analytics store. retention <= 0 falls back to DefaultRetention.
func New(s store, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{store: s, retention: retention}
}

// Record persists one query record and registers it in the workspace's
// daily index set so reporting can enumerate records per workspace and day.
func (s *Store) Record(ctx context.Context, rec domsearch.QueryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal query record %s: %w", rec.ID, err)
	}

	key := keyPrefix + rec.ID
	if err := s.store.SetWithTTL(ctx, key, data, s.retention); err != nil {
		return fmt.Errorf("analytics SET %s: %w", key, err)
	}

	idx := indexKey(rec.WorkspaceID, rec.At)
	if err := s.store.SAdd(ctx, idx, key); err != nil {
		return fmt.Errorf("analytics SADD %s: %w", idx, err)
	}
	// Keep the index alive slightly past its members so reads never race
	// member expiry.
	if err := s.store.Expire(ctx, idx, s.retention+24*time.Hour); err != nil {
		return fmt.Errorf("analytics EXPIRE %s: %w", idx, err)
	}

	return nil
}

func indexKey(workspaceID string, at time.Time) string {
	return "analytics:ws:" + workspaceID + ":" + at.UTC().Format("2006-01-02")
}
