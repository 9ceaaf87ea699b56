package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/callcache"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpInc    Op = "inc"
	OpAppend Op = "append"
	OpList   Op = "list"
	OpExpire Op = "expire"
	OpDelete Op = "delete"
	OpFlush  Op = "flush"
)

// Fake exposes a deterministic in-memory cache plus assertion helpers for tests.
// It wraps the memory store so no external services are needed.
type Fake struct {
	cache  *callcache.Cache
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake using an in-memory store. Options are passed to the cache.
func New(opts ...callcache.CacheOption) *Fake {
	store := &countingStore{inner: callcache.NewMemoryStore(context.Background())}
	f := &Fake{counts: make(map[Op]map[string]int)}
	store.onCount = f.record
	f.cache = callcache.NewCache(store, opts...)
	return f
}

// Cache returns the cache to inject into code under test.
func (f *Fake) Cache() *callcache.Cache { return f.cache }

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// AssertStoreCalls checks the recorded Cache.Store counter and the number of
// complete input/output pairs.
func (f *Fake) AssertStoreCalls(t *testing.T, times int) {
	t.Helper()
	h, err := f.cache.History(context.Background())
	if err != nil {
		t.Fatalf("read store history: %v", err)
	}
	if h.Count != int64(times) || len(h.Calls()) != times {
		t.Fatalf("expected %d recorded store calls, got count=%d pairs=%d", times, h.Count, len(h.Calls()))
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   callcache.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() callcache.Driver { return s.inner.Driver() }

func (s *countingStore) Ready(ctx context.Context) error { return s.inner.Ready(ctx) }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val)
}

func (s *countingStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	s.bump(OpInc, key)
	return s.inner.Increment(ctx, key, delta)
}

func (s *countingStore) Append(ctx context.Context, key string, val []byte) (int64, error) {
	s.bump(OpAppend, key)
	return s.inner.Append(ctx, key, val)
}

func (s *countingStore) List(ctx context.Context, key string) ([][]byte, error) {
	s.bump(OpList, key)
	return s.inner.List(ctx, key)
}

func (s *countingStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.bump(OpExpire, key)
	return s.inner.Expire(ctx, key, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
