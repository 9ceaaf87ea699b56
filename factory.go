package callcache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// NewStore returns a concrete store for the requested driver.
// Construction failures are reported by every call on the returned store.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := callcache.NewStore(ctx, callcache.StoreConfig{
//		Driver: callcache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverMemory:
		return newMemoryStore(cfg.MemoryCleanupInterval)
	case DriverFile:
		return newFileStore(cfg.FileDir)
	case DriverRedis:
		client := cfg.RedisClient
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		}
		return newRedisStore(client, cfg.Prefix)
	case DriverSQL:
		store, err := newSQLStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: DriverSQL, err: err}
		}
		return store
	case DriverNATS:
		kv := cfg.NATSKeyValue
		if kv == nil {
			if cfg.NATSURL == "" {
				return &errorStore{driver: DriverNATS, err: errors.New("nats driver requires a key-value handle or url")}
			}
			var err error
			if kv, err = dialNATSKeyValue(cfg.NATSURL, cfg.NATSBucket); err != nil {
				return &errorStore{driver: DriverNATS, err: err}
			}
		}
		return newNATSStore(kv, cfg.Prefix)
	case DriverDynamo:
		store, err := newDynamoStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: DriverDynamo, err: err}
		}
		return store
	default:
		return &errorStore{driver: cfg.Driver, err: errors.New("unknown driver " + string(cfg.Driver))}
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
// @group Constructors
//
// Example: redis store (options)
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := callcache.NewStoreWith(ctx, callcache.DriverRedis,
//		callcache.WithRedisClient(redisClient),
//		callcache.WithPrefix("app"),
//	)
//	fmt.Println(store.Driver()) // redis
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store.
// @group Constructors
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewRedisStore is a convenience for a redis-backed store.
// @group Constructors
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewFileStore is a convenience for a filesystem-backed store.
// @group Constructors
func NewFileStore(ctx context.Context, dir string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverFile, append([]StoreOption{WithFileDir(dir)}, opts...)...)
}

// NewSQLStore is a convenience for a database/sql-backed store.
// @group Constructors
func NewSQLStore(ctx context.Context, driverName, dsn, table string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverSQL, append([]StoreOption{WithSQL(driverName, dsn, table)}, opts...)...)
}

// NewNATSStore is a convenience for a JetStream key-value store.
// @group Constructors
func NewNATSStore(ctx context.Context, kv NATSKeyValue, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverNATS, append([]StoreOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewDynamoStore is a convenience for a DynamoDB-backed store.
// @group Constructors
func NewDynamoStore(ctx context.Context, client DynamoAPI, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverDynamo, append([]StoreOption{WithDynamoClient(client)}, opts...)...)
}
