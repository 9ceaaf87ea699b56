package callcache

import (
	"context"
	"time"
)

// errorStore is returned when a driver fails to initialize; it preserves the driver
// identity while surfacing the construction error on every call.
type errorStore struct {
	driver Driver
	err    error
}

func (e *errorStore) Driver() Driver                                    { return e.driver }
func (e *errorStore) Ready(context.Context) error                        { return e.err }
func (e *errorStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, e.err }
func (e *errorStore) Set(context.Context, string, []byte) error          { return e.err }
func (e *errorStore) Increment(context.Context, string, int64) (int64, error) {
	return 0, e.err
}
func (e *errorStore) Append(context.Context, string, []byte) (int64, error) { return 0, e.err }
func (e *errorStore) List(context.Context, string) ([][]byte, error)        { return nil, e.err }
func (e *errorStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, e.err
}
func (e *errorStore) Delete(context.Context, string) error { return e.err }
func (e *errorStore) Flush(context.Context) error          { return e.err }
