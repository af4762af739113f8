// Package memory implements the in-process LRU cache backend.
package memory

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/quillcache/quill/pkg/cache"
	"github.com/quillcache/quill/pkg/models"
)

type entry struct {
	key          cache.Key
	value        string
	createdAt    time.Time
	lastAccessed time.Time
}

// Cache is a thread-safe bounded LRU map with optional TTL expiry. A
// single mutex guards the map, the recency list, and all counters; no
// operation can observe a partially updated structure.
//
// TTL is measured from last access and checked lazily at lookup time.
// There is no background sweep: an expired entry lingers until it is
// looked up again or pushed out by LRU pressure.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = least recently used, back = most recent
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

// New creates a Cache holding at most maxSize entries. maxSize is clamped
// to a minimum of 1. A ttl of 0 means entries never expire.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Lookup returns the cached value for key. A hit refreshes the entry's
// last-accessed time and moves it to the most-recently-used position. An
// entry past its TTL is removed and counted as both expired and missed.
func (c *Cache) Lookup(key cache.Key) (string, bool) {
	digest := key.Digest()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[digest]
	if !ok {
		c.misses++
		return "", false
	}

	e := elem.Value.(*entry)
	if c.ttl > 0 && now.Sub(e.lastAccessed) > c.ttl {
		c.removeLocked(digest, elem)
		c.expired++
		c.misses++
		return "", false
	}

	c.order.MoveToBack(elem)
	e.lastAccessed = now
	c.hits++
	return e.value, true
}

// Update stores value under key at the most-recently-used position. Any
// existing entry for key is removed first so the re-insert lands at the
// MRU position rather than its old one. Eviction loops until the size
// bound holds: a preceding Resize may have left the cache over capacity.
func (c *Cache) Update(key cache.Key, value string) {
	digest := key.Digest()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[digest]; ok {
		c.removeLocked(digest, elem)
	}

	for len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	e := &entry{key: key, value: value, createdAt: now, lastAccessed: now}
	c.entries[digest] = c.order.PushBack(e)
}

// Clear drops all entries and resets every counter in the same critical
// section.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits, c.misses, c.evictions, c.expired = 0, 0, 0, 0
	return nil
}

// Resize changes the capacity bound, clamped to a minimum of 1, then
// evicts from the LRU end until the bound holds. Growing, or shrinking to
// a bound at or above the current size, evicts nothing.
func (c *Cache) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxSize = maxSize
	for len(c.entries) > c.maxSize {
		c.evictOldestLocked()
	}
}

// Stats reports current metrics. Oldest and Newest are the extreme
// last-accessed times among live entries and are zero when empty.
func (c *Cache) Stats() (models.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := models.CacheStats{
		Type:        models.BackendMemory,
		CurrentSize: int64(len(c.entries)),
		MaxSize:     int64(c.maxSize),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expired:     c.expired,
		TTL:         c.ttl,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	if front := c.order.Front(); front != nil {
		stats.Oldest = front.Value.(*entry).lastAccessed
		stats.Newest = c.order.Back().Value.(*entry).lastAccessed
	}
	return stats, nil
}

// Ping writes and reads back a sentinel key in the reserved health
// namespace, then removes it. The probe runs under the lock and bypasses
// capacity enforcement and counters so it cannot evict real entries or
// skew statistics.
func (c *Cache) Ping() error {
	probe := cache.HealthKey()
	digest := probe.Digest()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[digest] = c.order.PushBack(&entry{key: probe, value: "ok", createdAt: now, lastAccessed: now})

	elem, ok := c.entries[digest]
	var v string
	if ok {
		v = elem.Value.(*entry).value
		c.removeLocked(digest, elem)
	}

	if !ok || v != "ok" {
		return fmt.Errorf("memory cache probe: wrote sentinel, read back %q (present=%t)", v, ok)
	}
	return nil
}

// Close is a no-op; the memory backend holds no external resources.
func (c *Cache) Close() error { return nil }

func (c *Cache) removeLocked(digest string, elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, digest)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.removeLocked(e.key.Digest(), front)
	c.evictions++
}
