package callcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// StoreOperation is the qualified name under which Cache.Store calls are recorded.
const StoreOperation = "Cache.Store"

var errNilDecoder = errors.New("decoder is required")

// ErrReservedKey is returned when the key generator yields a key that holds
// the Store call counter or history.
var ErrReservedKey = errors.New("generated key is reserved for call history")

// Cache stores scalar values under generated keys and records every Store call
// (count plus input/output history) in the same backing store.
type Cache struct {
	store    Store
	observer Observer
	newKey   func() string
	storeOp  Operation[any, string]
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithKeyFunc replaces the random UUID key generator.
func WithKeyFunc(fn func() string) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.newKey = fn
		}
	}
}

// NewCache creates an instrumented cache bound to a concrete store.
// @group Cache
//
// Example: store and read back
//
//	ctx := context.Background()
//	c := callcache.NewCache(callcache.NewMemoryStore(ctx))
//	key, _ := c.Store("hello")
//	value, ok, _ := c.GetString(key)
//	fmt.Println(ok, value) // true hello
func NewCache(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.storeOp = CountCalls(store, StoreOperation, CallHistory[any, string](store, StoreOperation, c.storeValue))
	return c
}

// WithObserver attaches an observer to receive operation events.
func (c *Cache) WithObserver(o Observer) *Cache {
	c.observer = o
	return c
}

// Backend returns the underlying store implementation.
// @group Cache
func (c *Cache) Backend() Store {
	return c.store
}

// Driver reports the underlying store driver.
// @group Cache
func (c *Cache) Driver() Driver {
	return c.store.Driver()
}

// Store writes data under a freshly generated key and returns the key.
// data must be a string, []byte, integer or float.
// @group Cache
//
// Example: store an integer
//
//	ctx := context.Background()
//	c := callcache.NewCache(callcache.NewMemoryStore(ctx))
//	key, _ := c.Store(42)
//	n, _, _ := c.GetInt(key)
//	fmt.Println(n) // 42
func (c *Cache) Store(data any) (string, error) {
	return c.StoreCtx(context.Background(), data)
}

func (c *Cache) StoreCtx(ctx context.Context, data any) (string, error) {
	start := time.Now()
	if _, err := encodeValue(data); err != nil {
		c.observe(ctx, "store", "", false, err, start)
		return "", err
	}
	key, err := c.storeOp(ctx, data)
	c.observe(ctx, "store", key, false, err, start)
	return key, err
}

func (c *Cache) storeValue(ctx context.Context, data any) (string, error) {
	body, err := encodeValue(data)
	if err != nil {
		return "", err
	}
	key := c.newKey()
	if isReservedKey(key) {
		return "", fmt.Errorf("%w: %q", ErrReservedKey, key)
	}
	if err := c.store.Set(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns the raw bytes stored under key. A missing key is reported with
// ok == false and no error.
// @group Cache
func (c *Cache) Get(key string) ([]byte, bool, error) {
	return c.GetCtx(context.Background(), key)
}

func (c *Cache) GetCtx(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.store.Get(ctx, key)
	c.observe(ctx, "get", key, ok, err, start)
	return body, ok, err
}

// GetString returns the value under key decoded as UTF-8 text.
// @group Cache
func (c *Cache) GetString(key string) (string, bool, error) {
	return RetrieveCtx[string](context.Background(), c, key, AsString)
}

func (c *Cache) GetStringCtx(ctx context.Context, key string) (string, bool, error) {
	return RetrieveCtx[string](ctx, c, key, AsString)
}

// GetInt returns the value under key decoded as a base-10 integer.
// @group Cache
func (c *Cache) GetInt(key string) (int64, bool, error) {
	return RetrieveCtx[int64](context.Background(), c, key, AsInt)
}

func (c *Cache) GetIntCtx(ctx context.Context, key string) (int64, bool, error) {
	return RetrieveCtx[int64](ctx, c, key, AsInt)
}

// GetFloat returns the value under key decoded as a float.
// @group Cache
func (c *Cache) GetFloat(key string) (float64, bool, error) {
	return RetrieveCtx[float64](context.Background(), c, key, AsFloat)
}

func (c *Cache) GetFloatCtx(ctx context.Context, key string) (float64, bool, error) {
	return RetrieveCtx[float64](ctx, c, key, AsFloat)
}

// Retrieve reads key and converts it with decode, using background context.
// @group Cache
func Retrieve[T any](c *Cache, key string, decode Decoder[T]) (T, bool, error) {
	return RetrieveCtx(context.Background(), c, key, decode)
}

// RetrieveCtx is the context-aware variant of Retrieve. Absent keys are never
// passed to decode; decode failures are returned as is.
func RetrieveCtx[T any](ctx context.Context, c *Cache, key string, decode Decoder[T]) (T, bool, error) {
	var zero T
	start := time.Now()
	if decode == nil {
		c.observe(ctx, "retrieve", key, false, errNilDecoder, start)
		return zero, false, errNilDecoder
	}
	body, ok, err := c.GetCtx(ctx, key)
	if err != nil || !ok {
		c.observe(ctx, "retrieve", key, ok, err, start)
		return zero, false, err
	}
	out, err := decode(body)
	if err != nil {
		c.observe(ctx, "retrieve", key, true, err, start)
		return zero, true, err
	}
	c.observe(ctx, "retrieve", key, true, nil, start)
	return out, true, nil
}

// Flush removes every key in the store scope, including recorded history.
// @group Cache
func (c *Cache) Flush() error {
	return c.FlushCtx(context.Background())
}

func (c *Cache) FlushCtx(ctx context.Context) error {
	start := time.Now()
	err := c.store.Flush(ctx)
	c.observe(ctx, "flush", "", false, err, start)
	return err
}

// History reads the recorded Store calls.
// @group Replay
func (c *Cache) History(ctx context.Context) (History, error) {
	return ReadHistory(ctx, c.store, StoreOperation)
}

// Replay writes the recorded Store calls to w.
// @group Replay
func (c *Cache) Replay(ctx context.Context, w io.Writer) error {
	return Replay(ctx, c.store, StoreOperation, w)
}

func isReservedKey(key string) bool {
	return key == StoreOperation || key == InputsKey(StoreOperation) || key == OutputsKey(StoreOperation)
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.store.Driver())
}
