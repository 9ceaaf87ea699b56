package callcache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsEnvelopeMarker = "callcache-v1"
	natsMaxCASAttempts = 16
)

var errNATSUnavailable = errors.New("nats key-value unavailable")

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

type natsStore struct {
	kv     NATSKeyValue
	prefix string
}

type natsEnvelope struct {
	Marker string `json:"m"`
	record
}

func newNATSStore(kv NATSKeyValue, prefix string) Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &natsStore{
		kv:     kv,
		prefix: prefix,
	}
}

// dialNATSKeyValue connects to url and opens bucket, creating it when missing.
func dialNATSKeyValue(url, bucket string) (NATSKeyValue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open nats bucket %q: %w", bucket, err)
	}
	return kv, nil
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Ready(context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	return nil
}

func (s *natsStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNATSUnavailable
	}
	rec, _, ok, err := s.load(s.cacheKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := rec.scalar()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *natsStore) Set(_ context.Context, key string, value []byte) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	body, err := encodeNATSEnvelope(scalarRecord(value))
	if err != nil {
		return err
	}
	_, err = s.kv.Put(s.cacheKey(key), body)
	return err
}

func (s *natsStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	if s.kv == nil {
		return 0, errNATSUnavailable
	}
	var next int64
	err := s.mutate(key, func(rec *record, found bool) (*record, error) {
		if !found {
			rec = &record{Kind: kindScalar}
		}
		var err error
		next, err = rec.increment(key, delta)
		return rec, err
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *natsStore) Append(_ context.Context, key string, value []byte) (int64, error) {
	if s.kv == nil {
		return 0, errNATSUnavailable
	}
	var n int64
	err := s.mutate(key, func(rec *record, found bool) (*record, error) {
		if !found {
			rec = &record{Kind: kindList}
		}
		var err error
		n, err = rec.append(value)
		return rec, err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *natsStore) List(_ context.Context, key string) ([][]byte, error) {
	if s.kv == nil {
		return nil, errNATSUnavailable
	}
	rec, _, ok, err := s.load(s.cacheKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return rec.list()
}

func (s *natsStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.kv == nil {
		return false, errNATSUnavailable
	}
	var existed bool
	err := s.mutate(key, func(rec *record, found bool) (*record, error) {
		existed = found
		if !found || ttl <= 0 {
			return nil, nil
		}
		rec.ExpiresAt = time.Now().Add(ttl).UnixMilli()
		return rec, nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *natsStore) Delete(_ context.Context, key string) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	err := s.kv.Delete(s.cacheKey(key))
	if isNATSMiss(err) {
		return nil
	}
	return err
}

func (s *natsStore) Flush(_ context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scopePrefix := s.scopePrefix()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scopePrefix) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

// load returns the live record for cacheKey. The revision is reported even for
// expired entries so callers can overwrite them with Update.
func (s *natsStore) load(cacheKey string) (*record, uint64, bool, error) {
	entry, err := s.kv.Get(cacheKey)
	if isNATSMiss(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, 0, false, nil
	}
	rec, err := decodeNATSEnvelope(entry.Value())
	if err != nil {
		return nil, 0, false, err
	}
	if rec.expired(time.Now()) {
		return nil, entry.Revision(), false, nil
	}
	return rec, entry.Revision(), true, nil
}

// mutate applies fn under optimistic concurrency on the entry revision,
// retrying when another writer wins the race. A nil record deletes the key.
func (s *natsStore) mutate(key string, fn func(rec *record, found bool) (*record, error)) error {
	cacheKey := s.cacheKey(key)
	for attempt := 0; attempt < natsMaxCASAttempts; attempt++ {
		rec, revision, found, err := s.load(cacheKey)
		if err != nil {
			return err
		}
		next, err := fn(rec, found)
		if err != nil {
			return err
		}
		if next == nil {
			if revision == 0 {
				return nil
			}
			if err := s.kv.Delete(cacheKey); err != nil && !isNATSMiss(err) {
				return err
			}
			return nil
		}
		body, err := encodeNATSEnvelope(next)
		if err != nil {
			return err
		}
		if revision == 0 {
			_, err = s.kv.Create(cacheKey, body)
		} else {
			_, err = s.kv.Update(cacheKey, body, revision)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isNATSMiss(err) {
			continue
		}
		return err
	}
	return errors.New("nats mutation exceeded retry limit")
}

func (s *natsStore) cacheKey(key string) string {
	return s.scopePrefix() + encodeNATSKeyPart(key)
}

func (s *natsStore) scopePrefix() string {
	return "p." + encodeNATSKeyPart(s.prefix) + ".k."
}

func encodeNATSEnvelope(rec *record) ([]byte, error) {
	body, err := json.Marshal(natsEnvelope{Marker: natsEnvelopeMarker, record: *rec})
	if err != nil {
		return nil, fmt.Errorf("marshal nats envelope: %w", err)
	}
	return body, nil
}

// decodeNATSEnvelope treats values not written by this store as raw scalars.
func decodeNATSEnvelope(body []byte) (*record, error) {
	if len(body) == 0 || body[0] != '{' {
		return scalarRecord(body), nil
	}
	var envelope natsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode nats envelope: %w", err)
	}
	if envelope.Marker != natsEnvelopeMarker {
		return scalarRecord(body), nil
	}
	return &envelope.record, nil
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
