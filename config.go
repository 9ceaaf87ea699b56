package callcache

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultPrefix                = "callcache"
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultRedisAddr             = "127.0.0.1:6379"
	defaultSQLTable              = "callcache_entries"
	defaultNATSBucket            = "callcache"
	defaultDynamoTable           = "callcache"
	defaultDynamoRegion          = "us-east-1"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "callcache")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// Prefix namespaces keys on shared backends.
	Prefix string

	// MemoryCleanupInterval controls in-process eviction of expired keys.
	MemoryCleanupInterval time.Duration

	// RedisClient is used as-is when set; otherwise one is dialed from RedisAddr.
	RedisClient RedisClient
	RedisAddr   string

	// FileDir controls where the file driver keeps its records.
	FileDir string

	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// NATSKeyValue is used as-is when set; otherwise NATSURL and NATSBucket are dialed.
	NATSKeyValue NATSKeyValue
	NATSURL      string
	NATSBucket   string

	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.RedisAddr == "" {
		c.RedisAddr = defaultRedisAddr
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.NATSBucket == "" {
		c.NATSBucket = defaultNATSBucket
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	return c
}
