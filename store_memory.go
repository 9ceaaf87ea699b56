package callcache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryStore struct {
	cache *gocache.Cache
	mu    sync.Mutex
}

func newMemoryStore(cleanupInterval time.Duration) Store {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultMemoryCleanupInterval
	}
	return &memoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *memoryStore) Driver() Driver {
	return DriverMemory
}

func (s *memoryStore) Ready(context.Context) error {
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	rec, ok := s.load(key)
	if !ok {
		return nil, false, nil
	}
	value, err := rec.scalar()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(key, scalarRecord(value))
	return nil
}

func (s *memoryStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.load(key)
	if !ok {
		rec = &record{Kind: kindScalar}
	}
	next, err := rec.increment(key, delta)
	if err != nil {
		return 0, err
	}
	s.save(key, rec)
	return next, nil
}

func (s *memoryStore) Append(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.load(key)
	if !ok {
		rec = &record{Kind: kindList}
	}
	n, err := rec.append(value)
	if err != nil {
		return 0, err
	}
	s.save(key, rec)
	return n, nil
}

func (s *memoryStore) List(_ context.Context, key string) ([][]byte, error) {
	rec, ok := s.load(key)
	if !ok {
		return [][]byte{}, nil
	}
	return rec.list()
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.load(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		s.cache.Delete(key)
		return true, nil
	}
	rec.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	s.save(key, rec)
	return true, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *memoryStore) Flush(_ context.Context) error {
	s.cache.Flush()
	return nil
}

func (s *memoryStore) load(key string) (*record, bool) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	rec, ok := item.(*record)
	if !ok {
		return nil, false
	}
	if rec.expired(time.Now()) {
		return nil, false
	}
	return rec.clone(), true
}

// save stores a private copy of rec; callers must hold mu.
func (s *memoryStore) save(key string, rec *record) {
	ttl := gocache.NoExpiration
	if rec.ExpiresAt > 0 {
		ttl = rec.ttl(time.Now())
		if ttl <= 0 {
			s.cache.Delete(key)
			return
		}
	}
	s.cache.Set(key, rec.clone(), ttl)
}
