package callcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

const fileRecordExt = ".rec"

type fileStore struct {
	dir string
	mu  sync.Mutex
}

func newFileStore(dir string) Store {
	if dir == "" {
		dir = defaultFileDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	return &fileStore{dir: dir}
}

func (s *fileStore) Driver() Driver {
	return DriverFile
}

func (s *fileStore) Ready(context.Context) error {
	return os.MkdirAll(s.dir, 0o755)
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	rec, ok, err := s.load(key)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := rec.scalar()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(key, scalarRecord(value))
}

func (s *fileStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.load(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		rec = &record{Kind: kindScalar}
	}
	next, err := rec.increment(key, delta)
	if err != nil {
		return 0, err
	}
	if err := s.save(key, rec); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *fileStore) Append(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.load(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		rec = &record{Kind: kindList}
	}
	n, err := rec.append(value)
	if err != nil {
		return 0, err
	}
	if err := s.save(key, rec); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *fileStore) List(_ context.Context, key string) ([][]byte, error) {
	rec, ok, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return rec.list()
}

func (s *fileStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.load(key)
	if err != nil || !ok {
		return false, err
	}
	if ttl <= 0 {
		return true, s.remove(key)
	}
	rec.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	return true, s.save(key, rec)
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	return s.remove(key)
}

func (s *fileStore) Flush(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileRecordExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStore) load(key string) (*record, bool, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	if rec.expired(time.Now()) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return rec, true, nil
}

// save writes rec through a temp file and rename so readers never see a partial record.
func (s *fileStore) save(key string, rec *record) error {
	body, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	tmp, err := createTempFile(s.dir, "rec-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := renameFile(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *fileStore) remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileRecordExt)
}
