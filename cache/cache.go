package cache

import (
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"
)

// The cache package holds the bounded, thread-safe caches shared by the
// position data, the oracle adapters and the swindle search. Entries are
// evicted least-recently-used first once the cache is full.

const minSize = 1024

type Cache[K comparable, V any] struct {
	name    string
	objects *lru.Cache[K, V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type Stats struct {
	Name   string
	Len    int
	Hits   uint64
	Misses uint64
}

// New creates a cache holding at most size entries.
func New[K comparable, V any](name string, size int) (*Cache[K, V], error) {
	if size < minSize {
		size = minSize
	}
	objects, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("name", name).Int("size", size).Msg("created-cache")
	return &Cache[K, V]{name: name, objects: objects}, nil
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	obj, ok := c.objects.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return obj, ok
}

func (c *Cache[K, V]) Add(key K, obj V) {
	c.objects.Add(key, obj)
}

func (c *Cache[K, V]) Len() int {
	return c.objects.Len()
}

func (c *Cache[K, V]) Purge() {
	c.objects.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Name:   c.name,
		Len:    c.objects.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Load returns the cached object for key, computing and storing it with
// loadFunc on a miss. Two goroutines missing at the same time may both run
// loadFunc; callers that need single-flight semantics must add it themselves.
func Load[K comparable, V any](c *Cache[K, V], key K, loadFunc func(K) (V, error)) (V, error) {
	if obj, ok := c.Get(key); ok {
		return obj, nil
	}
	obj, err := loadFunc(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Add(key, obj)
	return obj, nil
}

// SizeForMemory returns how many entries of roughly entrySize bytes fit in
// the given fraction of total system memory.
func SizeForMemory(fractionOfMemory float64, entrySize int) int {
	totalMem := memory.TotalMemory()
	if totalMem == 0 || entrySize <= 0 {
		return minSize
	}
	n := fractionOfMemory * float64(totalMem) / float64(entrySize)
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	log.Info().
		Float64("fraction-of-memory", fractionOfMemory).
		Int("entry-size", entrySize).
		Uint64("total-system-memory-bytes", totalMem).
		Int("num-elems", int(n)).
		Msg("cache-size-from-memory")
	return max(int(n), minSize)
}
