package feeder

import (
	"container/list"
	"fmt"
	"image"
	"sync"
)

// imageCache keeps decoded and resized images in memory with LRU eviction,
// so repeated epochs over the same split avoid re-decoding from disk.
type imageCache struct {
	mu      sync.Mutex
	cache   map[string]*image.NRGBA
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int

	hits   int64
	misses int64
}

func newImageCache(maxSize int) *imageCache {
	return &imageCache{
		cache:   make(map[string]*image.NRGBA),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// get retrieves a cached image and marks it most recently used.
func (c *imageCache) get(key string) (*image.NRGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img, exists := c.cache[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		c.hits++
		return img, true
	}

	c.misses++
	return nil, false
}

// put stores an image, evicting the least recently used entries when the
// cache exceeds its capacity.
func (c *imageCache) put(key string, img *image.NRGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		return
	}

	elem := c.lru.PushFront(key)
	c.lruMap[key] = elem
	c.cache[key] = img

	for len(c.cache) > c.maxSize && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		oldKey := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.lruMap, oldKey)
		delete(c.cache, oldKey)
	}
}

// CacheStats holds cache hit statistics.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
}

func (c *imageCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:    len(c.cache),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// String returns a short summary of the cache statistics.
func (cs CacheStats) String() string {
	total := cs.Hits + cs.Misses
	rate := 0.0
	if total > 0 {
		rate = float64(cs.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, rate)
}
