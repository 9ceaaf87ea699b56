package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/goforj/callcache"
)

// Config is the environment-driven backend configuration. The default file
// driver keeps history between invocations of the CLI.
type Config struct {
	Driver    string `env:"CALLCACHE_DRIVER" envDefault:"file"`
	Prefix    string `env:"CALLCACHE_PREFIX" envDefault:"callcache"`
	RedisAddr string `env:"CALLCACHE_REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	SQLDriver string `env:"CALLCACHE_SQL_DRIVER" envDefault:"sqlite"`
	SQLDSN    string `env:"CALLCACHE_SQL_DSN" envDefault:"file:callcache.db"`
	SQLTable  string `env:"CALLCACHE_SQL_TABLE" envDefault:"callcache_entries"`

	// FileDir falls back to the library default under the system temp dir.
	FileDir string `env:"CALLCACHE_FILE_DIR"`

	NATSURL    string `env:"CALLCACHE_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSBucket string `env:"CALLCACHE_NATS_BUCKET" envDefault:"callcache"`

	DynamoEndpoint string `env:"CALLCACHE_DYNAMO_ENDPOINT"`
	DynamoRegion   string `env:"CALLCACHE_DYNAMO_REGION" envDefault:"us-east-1"`
	DynamoTable    string `env:"CALLCACHE_DYNAMO_TABLE" envDefault:"callcache"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// StoreConfig maps the CLI configuration onto the library's store settings.
func (c Config) StoreConfig() callcache.StoreConfig {
	return callcache.StoreConfig{
		Driver:         callcache.Driver(c.Driver),
		Prefix:         c.Prefix,
		RedisAddr:      c.RedisAddr,
		FileDir:        c.FileDir,
		SQLDriverName:  c.SQLDriver,
		SQLDSN:         c.SQLDSN,
		SQLTable:       c.SQLTable,
		NATSURL:        c.NATSURL,
		NATSBucket:     c.NATSBucket,
		DynamoEndpoint: c.DynamoEndpoint,
		DynamoRegion:   c.DynamoRegion,
		DynamoTable:    c.DynamoTable,
	}
}
