package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
)

type fakeStore struct {
	kv      map[string][]byte
	ttls    map[string]time.Duration
	sets    map[string][]string
	failSet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:   make(map[string][]byte),
		ttls: make(map[string]time.Duration),
		sets: make(map[string][]string),
	}
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet {
		return errors.New("backend down")
	}
	f.kv[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	f.sets[key] = append(f.sets[key], members...)
	return nil
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.ttls[key] = ttl
	return nil
}

func testRecord() domsearch.QueryRecord {
	return domsearch.QueryRecord{
		ID:          "rec-1",
		CallerID:    "u1",
		WorkspaceID: "w1",
		Query:       "rope",
		ResultCount: 3,
		At:          time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
	}
}

func TestRecord_PersistsAndIndexes(t *testing.T) {
	f := newFakeStore()
	s := New(f, 24*time.Hour)

	if err := s.Record(context.Background(), testRecord()); err != nil {
		t.Fatal(err)
	}

	data, ok := f.kv["analytics:query:rec-1"]
	if !ok {
		t.Fatal("record key missing")
	}
	var got domsearch.QueryRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Query != "rope" || got.WorkspaceID != "w1" {
		t.Errorf("stored record: %+v", got)
	}
	if f.ttls["analytics:query:rec-1"] != 24*time.Hour {
		t.Errorf("record ttl: %v", f.ttls["analytics:query:rec-1"])
	}

	idx := "analytics:ws:w1:2026-08-24"
	members, ok := f.sets[idx]
	if !ok || len(members) != 1 || members[0] != "analytics:query:rec-1" {
		t.Errorf("index set %s: %v", idx, members)
	}
	if f.ttls[idx] <= 24*time.Hour {
		t.Errorf("index ttl %v must outlive its members", f.ttls[idx])
	}
}

func TestRecord_SurfacesBackendError(t *testing.T) {
	f := newFakeStore()
	f.failSet = true
	s := New(f, 0)

	if err := s.Record(context.Background(), testRecord()); err == nil {
		t.Fatal("backend failure must surface (caller decides to drop it)")
	}
}
