package cachecore

import (
	"context"
	"errors"
	"time"
)

// ErrWrongType is returned when a scalar operation hits a list key or the reverse.
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// Store is the key-value contract consumed by the instrumented cache.
//
// Scalars written with Set never expire until Expire is called. Increment and
// Append keep an existing expiry. Returned byte slices are owned by the caller.
type Store interface {
	Driver() Driver
	Ready(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Append(ctx context.Context, key string, value []byte) (int64, error)
	List(ctx context.Context, key string) ([][]byte, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}
