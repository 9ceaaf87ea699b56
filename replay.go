package callcache

import (
	"context"
	"fmt"
	"io"
)

// CallRecord is one recorded invocation.
type CallRecord struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// History is everything recorded for one instrumented operation.
type History struct {
	Operation string
	// Count is the counter value; zero means the operation was never called.
	Count   int64
	Inputs  []string
	Outputs []string
}

// Called reports whether the operation has a recorded call count.
func (h History) Called() bool {
	return h.Count > 0
}

// Calls pairs inputs with outputs by index. When the lists diverge, for
// example after a failed call recorded its input but no output, the result is
// truncated to the shorter list.
func (h History) Calls() []CallRecord {
	n := len(h.Inputs)
	if len(h.Outputs) < n {
		n = len(h.Outputs)
	}
	calls := make([]CallRecord, 0, n)
	for i := 0; i < n; i++ {
		calls = append(calls, CallRecord{Input: h.Inputs[i], Output: h.Outputs[i]})
	}
	return calls
}

// Render writes the history as replay lines.
func (h History) Render(w io.Writer) error {
	if !h.Called() {
		_, err := fmt.Fprintf(w, "%s was never called\n", h.Operation)
		return err
	}
	unit := "times"
	if h.Count == 1 {
		unit = "time"
	}
	if _, err := fmt.Fprintf(w, "%s was called %d %s:\n", h.Operation, h.Count, unit); err != nil {
		return err
	}
	for _, call := range h.Calls() {
		if _, err := fmt.Fprintf(w, "%s%s -> %s\n", h.Operation, call.Input, call.Output); err != nil {
			return err
		}
	}
	return nil
}

// ReadHistory loads the counter and both history lists for operation name.
// @group Replay
func ReadHistory(ctx context.Context, store Store, name string) (History, error) {
	h := History{Operation: name}
	raw, ok, err := store.Get(ctx, name)
	if err != nil {
		return h, err
	}
	if !ok {
		return h, nil
	}
	if h.Count, err = AsInt(raw); err != nil {
		return h, fmt.Errorf("read call count for %s: %w", name, err)
	}
	if h.Inputs, err = readStrings(ctx, store, InputsKey(name)); err != nil {
		return h, err
	}
	if h.Outputs, err = readStrings(ctx, store, OutputsKey(name)); err != nil {
		return h, err
	}
	return h, nil
}

// Replay writes every recorded call of operation name to w, oldest first.
// @group Replay
//
// Example: replay stored calls
//
//	ctx := context.Background()
//	store := callcache.NewMemoryStore(ctx)
//	c := callcache.NewCache(store)
//	_, _ = c.Store("foo")
//	_ = callcache.Replay(ctx, store, callcache.StoreOperation, os.Stdout)
//	// Cache.Store was called 1 time:
//	// Cache.Store("foo") -> 2f5c...
func Replay(ctx context.Context, store Store, name string, w io.Writer) error {
	h, err := ReadHistory(ctx, store, name)
	if err != nil {
		return err
	}
	return h.Render(w)
}

func readStrings(ctx context.Context, store Store, key string) ([]string, error) {
	items, err := store.List(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, string(item))
	}
	return out, nil
}
