package callcache

import "time"

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithPrefix sets the key prefix for shared backends (e.g., redis).
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithRedisClient sets the redis client used by DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithRedisAddr sets the address dialed when no redis client is supplied.
func WithRedisAddr(addr string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisAddr = addr
		return cfg
	}
}

// WithFileDir sets the directory used by DriverFile.
func WithFileDir(dir string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithSQL configures the database/sql driver name, DSN and table for DriverSQL.
func WithSQL(driverName, dsn, table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		cfg.SQLTable = table
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream key-value bucket used by DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithNATS sets the server URL and bucket dialed when no key-value handle is supplied.
func WithNATS(url, bucket string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSURL = url
		cfg.NATSBucket = bucket
		return cfg
	}
}

// WithDynamoClient sets the DynamoDB client used by DriverDynamo.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamo sets the endpoint, region and table for DriverDynamo.
func WithDynamo(endpoint, region, table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoEndpoint = endpoint
		cfg.DynamoRegion = region
		cfg.DynamoTable = table
		return cfg
	}
}
