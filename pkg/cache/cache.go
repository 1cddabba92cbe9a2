// Package cache stores generated composites so an identical request can skip
// inference.
//
// Keys come from a [Keyer] and cover everything that changes the composite:
// the conditioning image, model, step count, dtype, scheduler and padding.
// Values are PNG bytes. Every backend treats read failures as misses; callers
// never fail a run because of the cache.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/zeromv/zeromv/pkg/errors"
)

// DefaultTTL is how long a composite stays cached.
const DefaultTTL = 30 * 24 * time.Hour

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is
	// (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Options selects and configures a cache backend.
type Options struct {
	Backend string
	Dir     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open returns the cache described by opts.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendFile:
		dir := opts.Dir
		if dir == "" {
			d, err := DefaultDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return NewFileCache(dir)
	case BackendRedis:
		return NewRedisCache(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	case BackendNone:
		return NewNullCache(), nil
	}
	return nil, errors.New(errors.ErrCodeConfig, "unknown cache backend %q (want file, redis or none)", opts.Backend)
}

// DefaultDir returns $XDG_CACHE_HOME/zeromv, or the platform cache dir.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "zeromv"), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeStorage, err, "locate cache directory")
	}
	return filepath.Join(base, "zeromv"), nil
}
