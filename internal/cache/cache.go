// Package cache holds extraction API responses for the duration of a run,
// keyed by URL and extraction schema.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is a cached extraction response. Either JSON or Markdown is set.
type Entry struct {
	JSON     map[string]any
	Markdown string
}

func (e *Entry) size() int64 {
	n := int64(len(e.Markdown))
	if e.JSON != nil {
		if b, err := json.Marshal(e.JSON); err == nil {
			n += int64(len(b))
		}
	}
	return n + 256
}

// Cache defines the interface for response caching implementations
type Cache interface {
	// Get retrieves a cached response by key
	Get(key string) (*Entry, bool)

	// Set stores a response with the specified TTL, replacing any previous value
	Set(key string, entry *Entry, ttl time.Duration) error

	Delete(key string) error
	Clear() error

	// Close stops background goroutines
	Close()
}

type cacheEntry struct {
	data      *Entry
	size      int64
	expiresAt time.Time
	key       string
}

// MemoryCache is an in-memory LRU cache with per-entry expiry
type MemoryCache struct {
	store   map[string]*list.Element
	lruList *list.List
	mu      sync.Mutex
	maxSize int64
	size    int64
	ctx     context.Context
	cancel  context.CancelFunc
	hits    uint64
	misses  uint64
}

// NewMemoryCache creates a new in-memory cache bounded to maxSizeBytes
func NewMemoryCache(maxSizeBytes int64) *MemoryCache {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 64 * 1024 * 1024
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &MemoryCache{
		store:   make(map[string]*list.Element),
		lruList: list.New(),
		maxSize: maxSizeBytes,
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.cleanupExpired()

	return c
}

// Get retrieves a cached response and marks it most recently used
func (mc *MemoryCache) Get(key string) (*Entry, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	element, exists := mc.store[key]
	if !exists {
		mc.misses++
		return nil, false
	}

	entry := element.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		mc.misses++
		mc.remove(element)
		return nil, false
	}

	mc.lruList.MoveToFront(element)
	mc.hits++

	log.Debug().Str("key", key).Msg("Cache hit")
	return entry.data, true
}

// Set stores a response with TTL
func (mc *MemoryCache) Set(key string, data *Entry, ttl time.Duration) error {
	if data == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	size := data.size()

	if element, exists := mc.store[key]; exists {
		mc.remove(element)
	}

	for mc.size+size > mc.maxSize && mc.lruList.Len() > 0 {
		mc.evictLRU()
	}

	entry := &cacheEntry{
		data:      data,
		size:      size,
		expiresAt: time.Now().Add(ttl),
		key:       key,
	}
	mc.store[key] = mc.lruList.PushFront(entry)
	mc.size += size

	log.Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Int64("size_bytes", size).
		Msg("Cached response")

	return nil
}

// Delete removes a cached response
func (mc *MemoryCache) Delete(key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if element, exists := mc.store[key]; exists {
		mc.remove(element)
	}
	return nil
}

// Clear removes all cached responses
func (mc *MemoryCache) Clear() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.store = make(map[string]*list.Element)
	mc.lruList = list.New()
	mc.size = 0
	mc.hits = 0
	mc.misses = 0
	return nil
}

// Close stops the background cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.cancel()
}

// remove must be called with the lock held
func (mc *MemoryCache) remove(element *list.Element) {
	entry := element.Value.(*cacheEntry)
	mc.lruList.Remove(element)
	delete(mc.store, entry.key)
	mc.size -= entry.size
}

// evictLRU must be called with the lock held
func (mc *MemoryCache) evictLRU() {
	element := mc.lruList.Back()
	if element == nil {
		return
	}
	log.Debug().Str("key", element.Value.(*cacheEntry).key).Msg("Evicted from cache (LRU)")
	mc.remove(element)
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := time.Now()
			var next *list.Element
			for element := mc.lruList.Front(); element != nil; element = next {
				next = element.Next()
				if now.After(element.Value.(*cacheEntry).expiresAt) {
					mc.remove(element)
				}
			}
			mc.mu.Unlock()
		case <-mc.ctx.Done():
			return
		}
	}
}

// Stats summarizes cache usage for the run summary
type Stats struct {
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats returns cache statistics including hit rate
func (mc *MemoryCache) Stats() Stats {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	hitRate := 0.0
	if total := mc.hits + mc.misses; total > 0 {
		hitRate = float64(mc.hits) / float64(total) * 100
	}

	return Stats{
		Entries:   mc.lruList.Len(),
		SizeBytes: mc.size,
		Hits:      mc.hits,
		Misses:    mc.misses,
		HitRate:   hitRate,
	}
}

// Key builds a cache key from a URL and the extraction schema and prompt
// used for it. A nil schema identifies a plain markdown fetch.
func Key(url string, schema map[string]any, prompt string) string {
	if schema == nil {
		return url + "::markdown"
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return url
	}
	h := sha256.New()
	h.Write(b)
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return url + "::" + hex.EncodeToString(h.Sum(nil)[:8])
}
