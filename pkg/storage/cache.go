// Package storage caches serialized prediction responses.
//
// A prediction is a pure function of the loaded artifact set and the request,
// so a response can be reused for any identical request served by the same
// set. Keys are built with Key from the set fingerprint and the canonical
// request body.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Backends accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrEmptyKey is returned when a cache operation is given an empty key.
var ErrEmptyKey = errors.New("cache key cannot be empty")

// Cache stores opaque values under string keys for a bounded time.
type Cache interface {
	// Get returns the value stored under key. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key derives a cache key from the artifact set fingerprint and request
// bytes. Different sets never share keys.
func Key(fingerprint string, request []byte) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(request)
	return hex.EncodeToString(h.Sum(nil))
}

// Config selects and sizes a cache.
type Config struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the cache named by cfg.Backend. It returns nil, nil for
// BackendNone or an empty backend.
func Open(cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		if cfg.TTL <= 0 {
			return nil, errors.New("memory cache requires a positive ttl")
		}
		return NewMemoryCache(cfg.TTL, cfg.MaxEntries, time.Minute), nil
	case BackendRedis:
		c, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (must be none, memory or redis)", cfg.Backend)
	}
}
