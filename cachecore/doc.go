// Package cachecore defines the key-value contract shared by callcache backends.
package cachecore
