// Package authcache is a TTL cache for JWKS keys (or any other
// externally-fetched auth material) used by the externally-facing
// router process. Router wiring itself is out of scope (spec.md §1);
// this package only provides the cache primitive spec.md §5 calls out
// as the one piece of process-wide mutable state that intentionally
// lives outside the Ticker/Dispatcher isolates, so it is never imported
// by internal/ticker or internal/dispatcher.
package authcache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Backend is the optional remote tier behind the in-process cache, so
// multiple router replicas can share freshly-fetched keys instead of
// each hitting the upstream JWKS endpoint independently. RedisBackend
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cache is a sync.Map-backed TTL cache with an optional remote Backend
// consulted on a local miss.
type Cache struct {
	ttl     time.Duration
	backend Backend
	entries sync.Map // string -> entry
}

// New builds a Cache with the given TTL. backend may be nil, in which
// case the cache is purely in-process.
func New(ttl time.Duration, backend Backend) *Cache {
	return &Cache{ttl: ttl, backend: backend}
}

// Get returns the cached value for key, consulting the remote backend
// (and populating the local entry from it) on a local miss or expiry.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := c.localGet(key); ok {
		return v, true
	}
	if c.backend == nil {
		return "", false
	}
	v, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	c.localSet(key, v)
	return v, true
}

// Set stores value for key, both locally and in the remote backend when
// configured.
func (c *Cache) Set(ctx context.Context, key, value string) {
	c.localSet(key, value)
	if c.backend != nil {
		_ = c.backend.Set(ctx, key, value, c.ttl)
	}
}

func (c *Cache) localGet(key string) (string, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) {
		c.entries.Delete(key)
		return "", false
	}
	return e.value, true
}

func (c *Cache) localSet(key, value string) {
	c.entries.Store(key, entry{value: value, expiresAt: time.Now().Add(c.ttl)})
}
