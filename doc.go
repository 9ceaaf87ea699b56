// Package callcache stores values under generated keys and records every
// Store call in the backing key-value store.
//
// Each Store call bumps a counter and appends its input and returned key to
// two history lists, so the calls can later be replayed from any backend:
//
//	c := callcache.NewCache(callcache.NewMemoryStore(ctx))
//	key, _ := c.Store("foo")
//	_ = c.Replay(ctx, os.Stdout)
//	// Cache.Store was called 1 time:
//	// Cache.Store("foo") -> <key>
package callcache
