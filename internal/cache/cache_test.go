package cache

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/db"
)

// fakeStore is an in-memory store with per-operation failure injection.
type fakeStore struct {
	kv   map[string][]byte
	ttls map[string]time.Duration
	sets map[string]map[string]struct{}

	failGet  bool
	failSet  bool
	failScan bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:   make(map[string][]byte),
		ttls: make(map[string]time.Duration),
		sets: make(map[string]map[string]struct{}),
	}
}

var errBackend = errors.New("backend down")

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errBackend
	}
	v, ok := f.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet {
		return errBackend
	}
	f.kv[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetMulti(_ context.Context, items []db.KVItem) error {
	if f.failSet {
		return errBackend
	}
	for _, it := range items {
		f.kv[it.Key] = it.Value
		f.ttls[it.Key] = it.TTL
	}
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.sets, k)
	}
	return nil
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if f.failScan {
		return nil, errBackend
	}
	var out []string
	for k := range f.kv {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func newTestCache(f *fakeStore) *Service {
	return New(f, "knsearch:", nil, nil, zap.NewNop())
}

func TestGetSet_RoundTrip(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)

	got, ok := c.Get(ctx, "k1")
	if !ok || string(got) != "v1" {
		t.Fatalf("Get = (%q, %v), want (v1, true)", got, ok)
	}
	if _, ok := f.kv["knsearch:k1"]; !ok {
		t.Error("stored key is not prefixed")
	}
}

func TestGet_BackendFailureIsAMiss(t *testing.T) {
	f := newFakeStore()
	f.failGet = true
	c := newTestCache(f)

	if _, ok := c.Get(context.Background(), "k1"); ok {
		t.Fatal("broken backend must read as a miss")
	}
	if c.Misses() != 1 {
		t.Errorf("misses: %d, want 1", c.Misses())
	}
}

func TestSet_BackendFailureIsANoOp(t *testing.T) {
	f := newFakeStore()
	f.failSet = true
	c := newTestCache(f)

	// Must not panic or surface an error.
	c.Set(context.Background(), "k1", []byte("v1"), time.Minute)
	c.SetTagged(context.Background(), "k2", []byte("v2"), time.Minute, []string{"t"})

	if len(f.kv) != 0 {
		t.Errorf("unexpected writes: %v", f.kv)
	}
}

func TestInvalidateTag_RemovesOnlyTaggedKeys(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)
	ctx := context.Background()

	c.SetTagged(ctx, "a", []byte("1"), time.Minute, []string{"ws:w1"})
	c.SetTagged(ctx, "b", []byte("2"), time.Minute, []string{"ws:w1"})
	c.SetTagged(ctx, "c", []byte("3"), time.Minute, []string{"ws:w2"})

	c.InvalidateTag(ctx, "ws:w1")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("a survived invalidation")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("b survived invalidation")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("c lost despite a different tag")
	}
	if _, ok := f.sets["knsearch:tag:ws:w1"]; ok {
		t.Error("tag set itself was not removed")
	}
}

func TestSetTagged_TagOutlivesMember(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)

	c.SetTagged(context.Background(), "a", []byte("1"), time.Minute, []string{"t"})

	member := f.ttls["knsearch:a"]
	tag := f.ttls["knsearch:tag:t"]
	if tag <= member {
		t.Errorf("tag ttl %v must exceed member ttl %v", tag, member)
	}
}

func TestClearWorkspace(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)
	ctx := context.Background()

	c.Set(ctx, "search:w1:abc", []byte("1"), time.Minute)
	c.Set(ctx, "search:w1:def", []byte("2"), time.Minute)
	c.Set(ctx, "search:w2:abc", []byte("3"), time.Minute)

	c.ClearWorkspace(ctx, "w1")

	if _, ok := c.Get(ctx, "search:w1:abc"); ok {
		t.Error("w1 entry survived clear")
	}
	if _, ok := c.Get(ctx, "search:w2:abc"); !ok {
		t.Error("w2 entry was cleared")
	}
}

func TestClearWorkspace_EmptyIDIsANoOp(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)
	ctx := context.Background()

	c.Set(ctx, "search:w1:abc", []byte("1"), time.Minute)
	c.ClearWorkspace(ctx, "")

	if _, ok := c.Get(ctx, "search:w1:abc"); !ok {
		t.Error("empty workspace id must not clear anything")
	}
}

func TestHitRate(t *testing.T) {
	f := newFakeStore()
	c := newTestCache(f)
	ctx := context.Background()

	if c.HitRate() != 0 {
		t.Errorf("hit rate before any lookup: %v, want 0", c.HitRate())
	}

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "k")
	c.Get(ctx, "missing")

	if c.Hits() != 2 || c.Misses() != 1 {
		t.Fatalf("hits=%d misses=%d, want 2/1", c.Hits(), c.Misses())
	}
	want := 2.0 / 3.0
	if c.HitRate() != want {
		t.Errorf("hit rate: %v, want %v", c.HitRate(), want)
	}
}

func TestWarmUp_FailureIsCountedNotSurfaced(t *testing.T) {
	f := newFakeStore()
	f.failSet = true
	c := newTestCache(f)

	c.WarmUp(context.Background(), []Entry{{Key: "k", Value: []byte("v"), TTL: time.Minute}})

	if len(f.kv) != 0 {
		t.Errorf("unexpected writes: %v", f.kv)
	}
}
