// Package cachetest provides reusable contract tests for cachecore.Store implementations.
//
// Example pattern:
//
//	func TestRedisStoreContract(t *testing.T) {
//		store := callcache.NewRedisStore(ctx, client, callcache.WithPrefix("test"))
//
//		// Namespace keys per test and tune TTL waits for backend semantics as needed.
//		cachetest.RunStoreContract(t, store, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package cachetest
