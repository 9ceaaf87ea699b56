package callcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type observedOp struct {
	op     string
	key    string
	hit    bool
	err    error
	driver Driver
}

type spyObserver struct {
	ops []observedOp
}

func (s *spyObserver) OnCacheOp(_ context.Context, op string, key string, hit bool, err error, _ time.Duration, driver Driver) {
	s.ops = append(s.ops, observedOp{op: op, key: key, hit: hit, err: err, driver: driver})
}

func TestCacheNotifiesObserver(t *testing.T) {
	spy := &spyObserver{}
	c := NewCache(newMemoryStore(0), WithKeyFunc(newSequentialKeys())).WithObserver(spy)

	key, _ := c.Store("v")
	_, _, _ = c.GetString(key)
	_, _, _ = c.Get("missing")
	_, _ = c.Store(struct{}{})
	_ = c.Flush()

	want := []struct {
		op  string
		key string
		hit bool
		err bool
	}{
		{op: "store", key: "key-1"},
		{op: "get", key: "key-1", hit: true},
		{op: "retrieve", key: "key-1", hit: true},
		{op: "get", key: "missing"},
		{op: "store", err: true},
		{op: "flush"},
	}
	if len(spy.ops) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(spy.ops), spy.ops)
	}
	for i, w := range want {
		got := spy.ops[i]
		if got.op != w.op || got.key != w.key || got.hit != w.hit || (got.err != nil) != w.err {
			t.Fatalf("event %d: expected %+v, got %+v", i, w, got)
		}
		if got.driver != DriverMemory {
			t.Fatalf("event %d: expected memory driver, got %s", i, got.driver)
		}
	}
}

func TestObserverFuncNilIsNoop(t *testing.T) {
	var f ObserverFunc
	f.OnCacheOp(context.Background(), "get", "k", false, nil, 0, DriverMemory)
}

func TestLogObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLogObserver(logger)
	ctx := context.Background()

	obs.OnCacheOp(ctx, "get", "k", true, nil, time.Millisecond, DriverRedis)
	obs.OnCacheOp(ctx, "store", "", false, errors.New("boom"), time.Millisecond, DriverRedis)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if first["level"] != "DEBUG" || first["op"] != "get" || first["hit"] != true || first["driver"] != "redis" {
		t.Fatalf("unexpected debug record: %v", first)
	}
	if second["level"] != "ERROR" || second["err"] != "boom" {
		t.Fatalf("unexpected error record: %v", second)
	}
}

func TestLogObserverDefaultsLogger(t *testing.T) {
	if NewLogObserver(nil) == nil {
		t.Fatalf("expected observer with default logger")
	}
}

func TestTracingObserverRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	c := NewCache(newMemoryStore(0), WithKeyFunc(newSequentialKeys())).
		WithObserver(NewTracingObserver(provider.Tracer("callcache-test")))
	key, _ := c.Store("v")
	_, _, _ = c.GetInt(key)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name() != "callcache.store" {
		t.Fatalf("unexpected first span %q", spans[0].Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["cache.key"].AsString() != "key-1" || attrs["cache.driver"].AsString() != "memory" {
		t.Fatalf("unexpected store span attributes: %v", spans[0].Attributes())
	}

	retrieve := spans[2]
	if retrieve.Name() != "callcache.retrieve" {
		t.Fatalf("unexpected last span %q", retrieve.Name())
	}
	if retrieve.Status().Code != codes.Error {
		t.Fatalf("expected decode failure to mark span as error, got %v", retrieve.Status())
	}
	if len(retrieve.Events()) == 0 {
		t.Fatalf("expected recorded error event")
	}
	if retrieve.StartTime().After(retrieve.EndTime()) {
		t.Fatalf("span start after end")
	}
}
