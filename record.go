package callcache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type recordKind uint8

const (
	kindScalar recordKind = iota
	kindList
)

// record is the storage shape shared by backends without native counters or lists.
type record struct {
	Kind      recordKind `json:"t"`
	Value     []byte     `json:"v,omitempty"`
	Items     [][]byte   `json:"l,omitempty"`
	ExpiresAt int64      `json:"ea,omitempty"` // unix millis, 0 means persistent
}

func scalarRecord(value []byte) *record {
	return &record{Kind: kindScalar, Value: cloneBytes(value)}
}

func (r *record) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.UnixMilli() >= r.ExpiresAt
}

func (r *record) ttl(now time.Time) time.Duration {
	if r.ExpiresAt <= 0 {
		return 0
	}
	return time.UnixMilli(r.ExpiresAt).Sub(now)
}

func (r *record) scalar() ([]byte, error) {
	if r.Kind != kindScalar {
		return nil, ErrWrongType
	}
	return cloneBytes(r.Value), nil
}

func (r *record) list() ([][]byte, error) {
	if r.Kind != kindList {
		return nil, ErrWrongType
	}
	return cloneItems(r.Items), nil
}

// increment applies delta to a scalar record; a nil record starts at zero.
func (r *record) increment(key string, delta int64) (int64, error) {
	if r.Kind != kindScalar {
		return 0, ErrWrongType
	}
	current := int64(0)
	if len(r.Value) > 0 {
		n, err := strconv.ParseInt(string(r.Value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("key %q does not contain a numeric value", key)
		}
		current = n
	}
	next := current + delta
	r.Value = []byte(strconv.FormatInt(next, 10))
	return next, nil
}

func (r *record) append(value []byte) (int64, error) {
	if r.Kind != kindList {
		return 0, ErrWrongType
	}
	r.Items = append(r.Items, cloneBytes(value))
	return int64(len(r.Items)), nil
}

func (r *record) clone() *record {
	cp := *r
	cp.Value = cloneBytes(r.Value)
	cp.Items = cloneItems(r.Items)
	return &cp
}

func encodeRecord(r *record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return body, nil
}

func decodeRecord(body []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

func cloneItems(items [][]byte) [][]byte {
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, cloneBytes(item))
	}
	return out
}
