package callcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

var errRedisUnavailable = errors.New("redis client unavailable")

type redisStore struct {
	client RedisClient
	prefix string
}

func newRedisStore(client RedisClient, prefix string) Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *redisStore) Driver() Driver {
	return DriverRedis
}

func (s *redisStore) Ready(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errRedisUnavailable
	}
	value, err := s.client.Get(ctx, s.cacheKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, redisErr(err)
	}
	// StringCmd.Bytes aliases the reply string; callers own what Get returns.
	return []byte(value), true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return redisErr(s.client.Set(ctx, s.cacheKey(key), value, 0).Err())
}

func (s *redisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	value, err := s.client.IncrBy(ctx, s.cacheKey(key), delta).Result()
	if err != nil {
		return 0, redisErr(err)
	}
	return value, nil
}

func (s *redisStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	n, err := s.client.RPush(ctx, s.cacheKey(key), value).Result()
	if err != nil {
		return 0, redisErr(err)
	}
	return n, nil
}

func (s *redisStore) List(ctx context.Context, key string) ([][]byte, error) {
	if s.client == nil {
		return nil, errRedisUnavailable
	}
	values, err := s.client.LRange(ctx, s.cacheKey(key), 0, -1).Result()
	if err != nil {
		return nil, redisErr(err)
	}
	items := make([][]byte, 0, len(values))
	for _, v := range values {
		items = append(items, []byte(v))
	}
	return items, nil
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.client == nil {
		return false, errRedisUnavailable
	}
	cacheKey := s.cacheKey(key)
	if ttl <= 0 {
		removed, err := s.client.Del(ctx, cacheKey).Result()
		if err != nil {
			return false, err
		}
		return removed > 0, nil
	}
	ok, err := s.client.Expire(ctx, cacheKey, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("expire key: %w", err)
	}
	return ok, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.client.Del(ctx, s.cacheKey(key)).Err()
}

func (s *redisStore) Flush(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	pattern := s.cacheKey("*")
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *redisStore) cacheKey(key string) string {
	return s.prefix + ":" + key
}

// redisErr maps server WRONGTYPE replies onto ErrWrongType.
func redisErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %s", ErrWrongType, err.Error())
	}
	return err
}
