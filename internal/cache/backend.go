// Package cache memoizes actor and object-location lookups in front of the
// durable stores.
package cache

import (
	"context"
	"time"
)

// Backend is a key/value store for encoded cache entries. A missing or
// expired key is reported as ok == false, never as an error.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A ttl <= 0 keeps the entry until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// Incr atomically adds one to the decimal counter at key, creating it at
	// zero first, and returns the new value. Counters never expire.
	Incr(ctx context.Context, key string) (int64, error)

	Close() error
}

// Driver selects a Backend implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Valid reports whether d names a known backend.
func (d Driver) Valid() bool {
	return d == DriverMemory || d == DriverRedis
}

// Config selects and tunes the cache backend.
type Config struct {
	Driver Driver `yaml:"driver"`

	// Redis settings, used when Driver is "redis".
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// TTL bounds how long listings stay cached. Zero keeps them until invalidated.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultConfig returns an in-process cache with a five minute listing TTL.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverMemory,
		TTL:    5 * time.Minute,
	}
}

// Open builds the backend described by cfg.
func Open(ctx context.Context, cfg *Config) (Backend, error) {
	if cfg.Driver == DriverRedis {
		return OpenRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	}
	return NewMemory(), nil
}
