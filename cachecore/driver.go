package cachecore

// Driver identifies a key-value backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverRedis  Driver = "redis"
	DriverSQL    Driver = "sql"
	DriverNATS   Driver = "nats"
	DriverDynamo Driver = "dynamodb"
)
