package callcache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errStubWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// stubRedisClient is an in-memory RedisClient used for unit tests.
type stubRedisClient struct {
	strings map[string]string
	lists   map[string][]string
	ttl     map[string]time.Time

	pingErr   error
	getErr    error
	setErr    error
	incrErr   error
	pushErr   error
	rangeErr  error
	expireErr error
	scanErr   error
	delErr    error
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		ttl:     make(map[string]time.Time),
	}
}

func (c *stubRedisClient) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && time.Now().After(deadline) {
		delete(c.ttl, key)
		delete(c.strings, key)
		delete(c.lists, key)
	}
}

func (c *stubRedisClient) exists(key string) bool {
	c.expireIfNeeded(key)
	_, isString := c.strings[key]
	_, isList := c.lists[key]
	return isString || isList
}

func (c *stubRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.pingErr != nil {
		cmd.SetErr(c.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (c *stubRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	if val, ok := c.strings[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	bytes, _ := value.([]byte)
	delete(c.lists, key)
	c.strings[key] = string(bytes)
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedisClient) IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.incrErr != nil {
		cmd.SetErr(c.incrErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	current := int64(0)
	if existing, ok := c.strings[key]; ok {
		parsed, err := strconv.ParseInt(existing, 10, 64)
		if err != nil {
			cmd.SetErr(errors.New("ERR value is not an integer or out of range"))
			return cmd
		}
		current = parsed
	}
	current += value
	c.strings[key] = strconv.FormatInt(current, 10)
	cmd.SetVal(current)
	return cmd
}

func (c *stubRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.pushErr != nil {
		cmd.SetErr(c.pushErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.strings[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	for _, v := range values {
		bytes, _ := v.([]byte)
		c.lists[key] = append(c.lists[key], string(bytes))
	}
	cmd.SetVal(int64(len(c.lists[key])))
	return cmd
}

func (c *stubRedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if c.rangeErr != nil {
		cmd.SetErr(c.rangeErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if _, ok := c.strings[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	// Only the full-range form used by the store is supported.
	out := append([]string{}, c.lists[key]...)
	cmd.SetVal(out)
	return cmd
}

func (c *stubRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if c.expireErr != nil {
		cmd.SetErr(c.expireErr)
		return cmd
	}
	if !c.exists(key) {
		cmd.SetVal(false)
		return cmd
	}
	c.ttl[key] = time.Now().Add(expiration)
	cmd.SetVal(true)
	return cmd
}

func (c *stubRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		if c.exists(key) {
			delete(c.strings, key)
			delete(c.lists, key)
			delete(c.ttl, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range c.strings {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	for key := range c.lists {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}
