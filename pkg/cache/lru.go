// Package cache holds an in-memory TTL cache for read-only HTTP responses
// such as the emission factor tables.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/greenledger/greenledger/pkg/metrics"
)

const (
	defaultTTL  = time.Minute
	defaultName = "default"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRUCache is a named, size-bounded response cache. Entries expire after a
// fixed TTL; when full, the least recently read entry is dropped. Lookups
// and evictions are reported under the cache name.
type LRUCache struct {
	name    string
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
}

// Option configures an LRUCache.
type Option func(*LRUCache)

// WithClock replaces time.Now as the source of expiry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *LRUCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
// maxSize below 1 becomes 1, a non-positive ttl becomes one minute and an
// empty name becomes "default".
func NewLRUCache(name string, maxSize int, ttl time.Duration, opts ...Option) *LRUCache {
	if name == "" {
		name = defaultName
	}
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &LRUCache{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the label the cache reports metrics under.
func (c *LRUCache) Name() string { return c.name }

// Get returns the live value for key and marks it most recently used. An
// expired entry is dropped and reported as a miss.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok && c.now().After(el.Value.(*entry).expiresAt) {
		c.remove(el, "expired")
		ok = false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, false
	}
	c.order.MoveToFront(el)
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return el.Value.(*entry).value, true
}

// Set stores value under key with a fresh TTL. Adding a new key to a full
// cache first drops an expired entry if there is one, else the least
// recently used.
func (c *LRUCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		c.makeRoom()
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
}

// Invalidate removes key.
func (c *LRUCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el, "")
	}
}

// InvalidateAll removes every entry.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Size returns the number of stored entries, expired ones included until a
// Get or Set drops them.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// makeRoom drops one entry. Caller holds c.mu.
func (c *LRUCache) makeRoom() {
	now := c.now()
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if now.After(el.Value.(*entry).expiresAt) {
			c.remove(el, "expired")
			return
		}
	}
	if el := c.order.Back(); el != nil {
		c.remove(el, "capacity")
	}
}

// remove unlinks el; a non-empty reason is counted as an eviction. Caller
// holds c.mu.
func (c *LRUCache) remove(el *list.Element, reason string) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
	if reason != "" {
		metrics.CacheEvictions.WithLabelValues(c.name, reason).Inc()
	}
}
