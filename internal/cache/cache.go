// Package cache provides the key-value store with per-entry expiry used for
// LLM responses and intake conversation state.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a string key-value store with TTL.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key for ttl. A zero ttl keeps the entry forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Opts holds cache configuration.
type Opts struct {
	URL string
}

// Option configures a cache backend.
type Option func(*Opts)

// WithRedisURL sets the redis:// connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// New returns a Redis cache when a URL is configured and an in-process cache
// otherwise.
func New(opts ...Option) (Cache, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return NewMemoryCache(), nil
	}
	return NewRedisCache(opts...)
}
