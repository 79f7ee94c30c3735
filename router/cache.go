package router

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache stores heuristic snapshots per URL with a TTL. A nil Cache on the
// Router degrades gracefully to probing every request.
type Cache interface {
	// Get returns the cached snapshot for a URL and whether it was a hit.
	Get(url string) (PageHeuristics, bool)

	// Set stores a snapshot with the given expiry.
	Set(url string, h PageHeuristics, ttl time.Duration)
}

type cacheEntry struct {
	heuristics PageHeuristics
	expiresAt  time.Time
}

// MemoryCache is an in-memory TTL cache for heuristic snapshots.
// It is safe for concurrent use.
type MemoryCache struct {
	mu         sync.RWMutex
	store      map[string]*cacheEntry
	maxEntries int
}

// NewMemoryCache creates a MemoryCache with the given capacity. A background
// goroutine evicts expired entries every 5 minutes.
func NewMemoryCache(maxEntries int) *MemoryCache {
	c := &MemoryCache{
		store:      make(map[string]*cacheEntry),
		maxEntries: maxEntries,
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a snapshot if present and not expired.
func (c *MemoryCache) Get(url string) (PageHeuristics, bool) {
	key := cacheKey(url)

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return PageHeuristics{}, false
	}
	return e.heuristics, true
}

// Set stores a snapshot. At capacity, one random entry is evicted to make
// room (map iteration order is random in Go).
func (c *MemoryCache) Set(url string, h PageHeuristics, ttl time.Duration) {
	key := cacheKey(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &cacheEntry{
		heuristics: h,
		expiresAt:  time.Now().Add(ttl),
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.store {
			if now.After(e.expiresAt) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
