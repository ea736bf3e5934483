// Package cache provides the content-addressed store backing phase-5 fan-out
// dedup: identical (prompt, style) image-generation requests within the
// cache's TTL window are served from memory instead of re-invoked against
// the Model Gateway.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a small wrapper over patrickmn/go-cache giving the rest of the
// codebase a narrow, typed interface instead of reaching for the library
// directly, mirroring paulround2tele-studio's ServiceRegistry usage.
type Store struct {
	c *gocache.Cache
}

// New builds a Store with the given default item TTL and background
// cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Store {
	return &Store{c: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns the cached value for key, if present and not expired.
func (s *Store) Get(key string) (any, bool) {
	return s.c.Get(key)
}

// Set stores value under key using the store's default expiration.
func (s *Store) Set(key string, value any) {
	s.c.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores value under key with an explicit per-item TTL,
// overriding the store's default.
func (s *Store) SetWithTTL(key string, value any, ttl time.Duration) {
	s.c.Set(key, value, ttl)
}

// Delete removes key from the cache, if present.
func (s *Store) Delete(key string) {
	s.c.Delete(key)
}

// ItemCount returns the number of non-expired items currently cached. The
// fan-out cache hit rate is not derived from it; it comes from each
// result's CacheHit flag.
func (s *Store) ItemCount() int {
	return s.c.ItemCount()
}
