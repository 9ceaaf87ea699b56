package cachetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/callcache/cachecore"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion for drivers where it is expensive or unavailable.
	SkipFlush bool
}

// Store is the minimal contract required by RunStoreContract.
type Store = cachecore.Store

// RunStoreContract runs a backend-agnostic store contract suite.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 250 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("ready failed: %v", err)
	}

	// Set/Get round-trip.
	if err := store.Set(ctx, key("alpha"), []byte("value")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil || !ok || string(body) != "value" {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
	}
	if !opts.SkipCloneCheck {
		body[0] = 'X'
		body2, ok2, err2 := store.Get(ctx, key("alpha"))
		if err2 != nil || !ok2 || string(body2) != "value" {
			t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
		}
	}

	// Missing keys are absent, not errors.
	if _, ok, err := store.Get(ctx, key("missing")); err != nil || ok {
		t.Fatalf("expected miss without error; ok=%v err=%v", ok, err)
	}
	items, err := store.List(ctx, key("missing-list"))
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list for missing key; items=%d err=%v", len(items), err)
	}

	// Counters.
	n, err := store.Increment(ctx, key("counter"), 1)
	if err != nil || n != 1 {
		t.Fatalf("expected increment=1, got %d err=%v", n, err)
	}
	n, err = store.Increment(ctx, key("counter"), 2)
	if err != nil || n != 3 {
		t.Fatalf("expected increment=3, got %d err=%v", n, err)
	}
	body, ok, err = store.Get(ctx, key("counter"))
	if err != nil || !ok || string(body) != "3" {
		t.Fatalf("expected counter readable as scalar; ok=%v body=%q err=%v", ok, string(body), err)
	}
	if _, err := store.Increment(ctx, key("alpha"), 1); err == nil {
		t.Fatalf("expected increment of non-numeric value to fail")
	}

	// Lists.
	for i, v := range []string{"one", "two", "three"} {
		n, err := store.Append(ctx, key("list"), []byte(v))
		if err != nil {
			t.Fatalf("append %q failed: %v", v, err)
		}
		if n != int64(i+1) {
			t.Fatalf("expected list length %d, got %d", i+1, n)
		}
	}
	items, err = store.List(ctx, key("list"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if got := joinItems(items); got != "one,two,three" {
		t.Fatalf("unexpected list contents: %q", got)
	}

	// Kind mismatches.
	if _, err := store.Append(ctx, key("alpha"), []byte("x")); !errors.Is(err, cachecore.ErrWrongType) {
		t.Fatalf("expected wrong type appending to scalar, got %v", err)
	}
	if _, _, err := store.Get(ctx, key("list")); !errors.Is(err, cachecore.ErrWrongType) {
		t.Fatalf("expected wrong type reading list as scalar, got %v", err)
	}
	if _, err := store.List(ctx, key("alpha")); !errors.Is(err, cachecore.ErrWrongType) {
		t.Fatalf("expected wrong type listing scalar, got %v", err)
	}

	// Expire.
	ok, err = store.Expire(ctx, key("nope"), time.Second)
	if err != nil || ok {
		t.Fatalf("expected expire on missing key to report false; ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, key("ttl"), []byte("v")); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	ok, err = store.Expire(ctx, key("ttl"), ttl)
	if err != nil || !ok {
		t.Fatalf("expire failed: ok=%v err=%v", ok, err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}
	if _, err := store.Append(ctx, key("ttl-list"), []byte("v")); err != nil {
		t.Fatalf("append ttl-list failed: %v", err)
	}
	if ok, err := store.Expire(ctx, key("ttl-list"), 0); err != nil || !ok {
		t.Fatalf("expire with zero ttl failed: ok=%v err=%v", ok, err)
	}
	if items, err := store.List(ctx, key("ttl-list")); err != nil || len(items) != 0 {
		t.Fatalf("expected zero ttl to delete list; items=%d err=%v", len(items), err)
	}

	// Set replaces an expiring value with a persistent one.
	if err := store.Set(ctx, key("persist"), []byte("a")); err != nil {
		t.Fatalf("set persist failed: %v", err)
	}
	if _, err := store.Expire(ctx, key("persist"), ttl); err != nil {
		t.Fatalf("expire persist failed: %v", err)
	}
	if err := store.Set(ctx, key("persist"), []byte("b")); err != nil {
		t.Fatalf("reset persist failed: %v", err)
	}
	time.Sleep(wait)
	if body, ok, err := store.Get(ctx, key("persist")); err != nil || !ok || string(body) != "b" {
		t.Fatalf("expected set to clear expiry; ok=%v body=%q err=%v", ok, string(body), err)
	}

	// Delete.
	if err := store.Delete(ctx, key("alpha")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("alpha")); err != nil || ok {
		t.Fatalf("expected key alpha deleted; ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, key("alpha")); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("counter")); err != nil || ok {
			t.Fatalf("expected flush to clear counter; ok=%v err=%v", ok, err)
		}
		if items, err := store.List(ctx, key("list")); err != nil || len(items) != 0 {
			t.Fatalf("expected flush to clear list; items=%d err=%v", len(items), err)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func joinItems(items [][]byte) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, string(item))
	}
	return strings.Join(parts, ",")
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
