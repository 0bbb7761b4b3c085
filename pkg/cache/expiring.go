package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/errors"
)

type expiringEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *expiringEntry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// expiringCache evicts the least recently used entry once maxSize is exceeded
// and treats entries older than ttl as absent. Expired entries are removed
// lazily on access or by RemoveExpired; the cache runs no goroutine of its own.
type expiringCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	clock   clock.Clock
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

// NewExpiring creates a cache holding at most maxSize entries, each live for ttl.
func NewExpiring[V any](maxSize int, ttl time.Duration, options ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("max size %d must be positive", maxSize),
			"cache", "NewExpiring", "validate size")
	}
	if ttl <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("ttl %s must be positive", ttl),
			"cache", "NewExpiring", "validate ttl")
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewExpiring", "metrics registration")
		}
	}

	return &expiringCache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		clock:   opts.clock,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(opts.clock),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

func (c *expiringCache[V]) Get(key string) (V, bool) {
	var zero V
	var evicted []*expiringEntry[V]
	defer func() { c.notifyEvicted(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.recordMiss()
		return zero, false
	}
	entry := element.Value.(*expiringEntry[V])
	if entry.expired(c.clock.Now()) {
		evicted = append(evicted, c.removeElement(element))
		c.recordEviction(1)
		c.recordMiss()
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return entry.value, true
}

func (c *expiringCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	created, _, evicted := c.store(key, value, true)
	c.notifyEvicted(evicted)
	return created, nil
}

func (c *expiringCache[V]) Add(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, stored, evicted := c.store(key, value, false)
	c.notifyEvicted(evicted)
	return stored, nil
}

// store inserts or, when replace is set, overwrites key. Entries pushed out by
// capacity or found expired are returned for the eviction callback.
func (c *expiringCache[V]) store(key string, value V, replace bool) (created, stored bool, evicted []*expiringEntry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if element, ok := c.items[key]; ok {
		entry := element.Value.(*expiringEntry[V])
		live := !entry.expired(now)
		if live && !replace {
			return false, false, nil
		}
		if !live {
			evicted = append(evicted, &expiringEntry[V]{key: entry.key, value: entry.value})
			c.recordEviction(1)
		}
		entry.value = value
		entry.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(element)
		c.recordSet()
		return !live, true, evicted
	}

	element := c.order.PushFront(&expiringEntry[V]{key: key, value: value, expiresAt: now.Add(c.ttl)})
	c.items[key] = element
	for len(c.items) > c.maxSize {
		evicted = append(evicted, c.removeElement(c.order.Back()))
		c.recordEviction(1)
	}
	c.recordSet()
	return true, true, evicted
}

func (c *expiringCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.removeElement(element)
	c.stats.Delete()
	c.updateSize()
	if c.metrics != nil {
		c.metrics.recordDelete()
	}
	return true, nil
}

func (c *expiringCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.updateSize()
}

func (c *expiringCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *expiringCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*expiringEntry[V])
		if !entry.expired(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

func (c *expiringCache[V]) RemoveExpired() int {
	var evicted []*expiringEntry[V]

	c.mu.Lock()
	now := c.clock.Now()
	for element := c.order.Front(); element != nil; {
		next := element.Next()
		if element.Value.(*expiringEntry[V]).expired(now) {
			evicted = append(evicted, c.removeElement(element))
		}
		element = next
	}
	c.recordEviction(len(evicted))
	c.mu.Unlock()

	c.notifyEvicted(evicted)
	return len(evicted)
}

func (c *expiringCache[V]) Stats() *Statistics {
	return c.stats
}

// removeElement unlinks element. Must be called with mu held.
func (c *expiringCache[V]) removeElement(element *list.Element) *expiringEntry[V] {
	entry := element.Value.(*expiringEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
	return entry
}

func (c *expiringCache[V]) notifyEvicted(entries []*expiringEntry[V]) {
	if c.evictFn == nil {
		return
	}
	for _, e := range entries {
		c.evictFn(e.key, e.value)
	}
}

func (c *expiringCache[V]) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *expiringCache[V]) recordSet() {
	c.stats.Set()
	c.updateSize()
	if c.metrics != nil {
		c.metrics.recordSet()
	}
}

func (c *expiringCache[V]) recordEviction(n int) {
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		c.stats.Eviction()
	}
	c.updateSize()
	if c.metrics != nil {
		c.metrics.recordEvictions(n)
	}
}

func (c *expiringCache[V]) updateSize() {
	size := len(c.items)
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.updateSize(size)
	}
}
