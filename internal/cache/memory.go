// Package cache provides a TTL-bounded in-memory cache, used to avoid
// re-parsing sync documents on every library read.
package cache

import (
	"sync"
	"time"

	"tabsync/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory cache
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
	}

	// Start cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, entry := range c.items {
			if entry.IsExpired() {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}

// MappingCache caches parsed sync documents by file path. Entries must be
// dropped whenever the underlying file changes or disappears.
type MappingCache struct {
	*MemoryCache
}

// NewMappingCache creates a cache for parsed sync documents.
func NewMappingCache() *MappingCache {
	return &MappingCache{
		MemoryCache: NewMemoryCache(15 * time.Minute),
	}
}

// SetMapping caches a parsed document.
func (mc *MappingCache) SetMapping(path string, m *models.SyncMapping) {
	mc.Set(path, m)
}

// GetMapping retrieves a cached document.
func (mc *MappingCache) GetMapping(path string) (*models.SyncMapping, bool) {
	value, exists := mc.Get(path)
	if !exists {
		return nil, false
	}

	m, ok := value.(*models.SyncMapping)
	return m, ok
}
