// Package ttlcache implements the process-local, namespace-keyed,
// time-expiring memoization cache used for HyDE/entity/relation steps
// (spec.md §4.5). It is domain-agnostic: namespaces and TTLs are supplied
// by the caller, not hardcoded here.
package ttlcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a single-mutex map keyed by "namespace:fingerprint", grounded
// on DESIGN NOTES §9's "single shared mutex or per-namespace sharded
// mutex is adequate" guidance — this implementation takes the simpler of
// the two options.
type Cache struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{data: make(map[string]entry), now: time.Now}
}

// Fingerprint returns the first 16 hex characters of sha256(keyingText),
// per spec.md §3's Cache entry definition.
func Fingerprint(keyingText string) string {
	sum := sha256.Sum256([]byte(keyingText))
	return hex.EncodeToString(sum[:])[:16]
}

func cacheKey(namespace, fingerprint string) string {
	return namespace + ":" + fingerprint
}

// Get returns the cached value for (namespace, fingerprint) if present
// and not expired. Expired entries are evicted on access.
func (c *Cache) Get(namespace, fingerprint string) (any, bool) {
	key := cacheKey(namespace, fingerprint)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under (namespace, fingerprint) with the given TTL,
// overwriting any existing entry.
func (c *Cache) Set(namespace, fingerprint string, value any, ttl time.Duration) {
	key := cacheKey(namespace, fingerprint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// GetOrCompute returns the cached value if present, else calls compute,
// stores the result under ttl, and returns it. compute is called at most
// once per miss (no dedup of concurrent misses on the same key — the
// workload is low-rate per DESIGN NOTES §9, so a stampede is harmless).
func (c *Cache) GetOrCompute(namespace, fingerprint string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(namespace, fingerprint); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(namespace, fingerprint, v, ttl)
	return v, nil
}
