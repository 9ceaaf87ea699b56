package callcache

import "github.com/goforj/callcache/cachecore"

// Driver identifies the key-value backend.
type Driver = cachecore.Driver

// Store is the key-value contract the cache is built on.
type Store = cachecore.Store

const (
	DriverMemory = cachecore.DriverMemory
	DriverFile   = cachecore.DriverFile
	DriverRedis  = cachecore.DriverRedis
	DriverSQL    = cachecore.DriverSQL
	DriverNATS   = cachecore.DriverNATS
	DriverDynamo = cachecore.DriverDynamo
)

// ErrWrongType is returned when a scalar operation hits a list key or the reverse.
var ErrWrongType = cachecore.ErrWrongType
