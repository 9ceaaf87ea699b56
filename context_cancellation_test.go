package callcache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingCalls struct {
	getCalls       int
	setCalls       int
	incrementCalls int
	appendCalls    int
	listCalls      int
	expireCalls    int
	deleteCalls    int
	flushCalls     int
}

// blockingCtxStore blocks every call until its context is done.
type blockingCtxStore struct {
	mu    sync.Mutex
	calls blockingCalls
}

func (s *blockingCtxStore) Driver() Driver { return DriverMemory }

func (s *blockingCtxStore) Ready(context.Context) error { return nil }

func (s *blockingCtxStore) block(ctx context.Context, counter *int) error {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingCtxStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, s.block(ctx, &s.calls.getCalls)
}

func (s *blockingCtxStore) Set(ctx context.Context, key string, value []byte) error {
	return s.block(ctx, &s.calls.setCalls)
}

func (s *blockingCtxStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, s.block(ctx, &s.calls.incrementCalls)
}

func (s *blockingCtxStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	return 0, s.block(ctx, &s.calls.appendCalls)
}

func (s *blockingCtxStore) List(ctx context.Context, key string) ([][]byte, error) {
	return nil, s.block(ctx, &s.calls.listCalls)
}

func (s *blockingCtxStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, s.block(ctx, &s.calls.expireCalls)
}

func (s *blockingCtxStore) Delete(ctx context.Context, key string) error {
	return s.block(ctx, &s.calls.deleteCalls)
}

func (s *blockingCtxStore) Flush(ctx context.Context) error {
	return s.block(ctx, &s.calls.flushCalls)
}

func (s *blockingCtxStore) snapshot() blockingCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestContextCancellation_CacheCallsReturnPromptly(t *testing.T) {
	cases := []struct {
		name      string
		run       func(c *Cache, ctx context.Context) error
		wantCalls blockingCalls
	}{
		{
			name: "getctx",
			run: func(c *Cache, ctx context.Context) error {
				_, ok, err := c.GetCtx(ctx, "k")
				if ok {
					t.Fatalf("expected miss on canceled get")
				}
				return err
			},
			wantCalls: blockingCalls{getCalls: 1},
		},
		{
			name: "storectx",
			run: func(c *Cache, ctx context.Context) error {
				_, err := c.StoreCtx(ctx, "v")
				return err
			},
			wantCalls: blockingCalls{incrementCalls: 1},
		},
		{
			name: "retrievectx",
			run: func(c *Cache, ctx context.Context) error {
				_, _, err := c.GetIntCtx(ctx, "k")
				return err
			},
			wantCalls: blockingCalls{getCalls: 1},
		},
		{
			name: "flushctx",
			run: func(c *Cache, ctx context.Context) error {
				return c.FlushCtx(ctx)
			},
			wantCalls: blockingCalls{flushCalls: 1},
		},
		{
			name: "replay",
			run: func(c *Cache, ctx context.Context) error {
				var buf bytes.Buffer
				err := c.Replay(ctx, &buf)
				if buf.Len() != 0 {
					t.Fatalf("expected no replay output on cancellation, got %q", buf.String())
				}
				return err
			},
			wantCalls: blockingCalls{getCalls: 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &blockingCtxStore{}
			c := NewCache(store)
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := tc.run(c, ctx)
			elapsed := time.Since(start)

			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("expected context deadline exceeded, got %v", err)
			}
			if elapsed > 250*time.Millisecond {
				t.Fatalf("%s returned too slowly after cancellation: %v", tc.name, elapsed)
			}
			if got := store.snapshot(); got != tc.wantCalls {
				t.Fatalf("unexpected store calls: got %+v want %+v", got, tc.wantCalls)
			}
		})
	}
}
