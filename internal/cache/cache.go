// Package cache memoizes indicator results for a short window so that
// repeated renders over unchanged data skip the kernels.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quantlab/internal/model"
)

// Defaults used when New is given non-positive values.
const (
	DefaultTTL      = 5 * time.Second
	DefaultCapacity = 50
)

// EvictReason says why an entry left the cache.
type EvictReason int

const (
	EvictTTL EvictReason = iota
	EvictCapacity
	EvictClear
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	case EvictClear:
		return "clear"
	default:
		return "unknown"
	}
}

type entry struct {
	result *model.Result
	at     time.Time
	seq    uint64
}

// Cache is a TTL-bounded, capacity-bounded result cache. Stored results are
// shared between callers and must be treated as read-only.
//
// All methods are safe for concurrent use. Hooks run outside the lock.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]entry
	ttl      time.Duration
	capacity int
	seq      uint64
	group    singleflight.Group

	// Now is the clock used for insertion stamps and staleness checks.
	Now func() time.Time

	OnHit   func(Key)
	OnMiss  func(Key)
	OnEvict func(Key, EvictReason)
}

// New creates a cache. Entries older than ttl are stale; at most capacity
// entries are held, the oldest being evicted first.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[Key]entry, capacity),
		ttl:      ttl,
		capacity: capacity,
		Now:      time.Now,
	}
}

// TTL returns the staleness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Get returns the fresh result stored under k. A stale entry is removed and
// reported as a miss.
func (c *Cache) Get(k Key) (*model.Result, bool) {
	c.mu.Lock()
	e, ok := c.entries[k]
	expired := ok && c.Now().Sub(e.at) > c.ttl
	if expired {
		delete(c.entries, k)
	}
	c.mu.Unlock()

	if expired {
		c.evicted(k, EvictTTL)
	}
	if !ok || expired {
		if c.OnMiss != nil {
			c.OnMiss(k)
		}
		return nil, false
	}
	if c.OnHit != nil {
		c.OnHit(k)
	}
	return e.result, true
}

// Put stores res under k. Nil and failed results are ignored. When the cache
// is full the entry with the oldest insertion time is evicted.
func (c *Cache) Put(k Key, res *model.Result) {
	if res == nil || res.Failed() {
		return
	}

	var (
		victim Key
		evict  bool
	)
	c.mu.Lock()
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		victim, evict = c.oldestLocked()
		if evict {
			delete(c.entries, victim)
		}
	}
	c.seq++
	c.entries[k] = entry{result: res, at: c.Now(), seq: c.seq}
	c.mu.Unlock()

	if evict {
		c.evicted(victim, EvictCapacity)
	}
}

// oldestLocked scans for the entry inserted first. Capacity is small, so a
// linear scan is cheaper than maintaining an ordered index.
func (c *Cache) oldestLocked() (Key, bool) {
	var (
		oldest Key
		best   entry
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.at.Before(best.at) || (e.at.Equal(best.at) && e.seq < best.seq) {
			oldest, best, found = k, e, true
		}
	}
	return oldest, found
}

// Do returns the cached result for k or, on a miss, runs fn once for all
// concurrent callers with the same key. The result is stored only when fn
// succeeds and the result carries no error. The boolean reports a hit.
func (c *Cache) Do(k Key, fn func() (*model.Result, error)) (*model.Result, bool, error) {
	if res, ok := c.Get(k); ok {
		return res, true, nil
	}
	v, err, _ := c.group.Do(k.String(), func() (interface{}, error) {
		res, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(k, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*model.Result), false, nil
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[Key]entry, c.capacity)
	c.mu.Unlock()

	for k := range old {
		c.evicted(k, EvictClear)
	}
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evicted(k Key, r EvictReason) {
	if c.OnEvict != nil {
		c.OnEvict(k, r)
	}
}
