package meteostat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves station observations for a location.
type Fetcher interface {
	FetchHourly(ctx context.Context, loc domain.Location) (*domain.StationPayload, error)
}

// CachedStationSource wraps a Fetcher with a per-location TTL cache and
// coalesces concurrent fetches for the same location into one request.
type CachedStationSource struct {
	inner   Fetcher
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedStationSource creates a cache decorator around a station fetcher.
func NewCachedStationSource(inner Fetcher, ttl time.Duration, maxEntries int, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CachedStationSource {
	return &CachedStationSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHourly serves a cached payload younger than the TTL, otherwise fetches.
// Empty results are cached too; errors are not.
func (c *CachedStationSource) FetchHourly(ctx context.Context, loc domain.Location) (*domain.StationPayload, error) {
	key := loc.Key()
	if payload, ok := c.cache.get(key, c.clock.Now(), c.ttl); ok {
		c.metrics.StationCache.WithLabelValues("hit").Inc()
		return payload, nil
	}

	// The shared fetch must outlive any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		payload, err := c.inner.FetchHourly(fetchCtx, loc)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, payload, c.clock.Now())
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.StationCache.WithLabelValues("shared").Inc()
		} else {
			c.metrics.StationCache.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			c.logger.Debug("station fetch failed", "key", key, "error", res.Err)
			return nil, res.Err
		}
		payload, _ := res.Val.(*domain.StationPayload)
		return payload, nil
	}
}

// lruCache is a thread-safe LRU of station payloads stamped with fetch time.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     *domain.StationPayload
	fetchedAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// get returns the value for key if it was stored less than ttl before now.
// Expired entries are dropped.
func (c *lruCache) get(key string, now time.Time, ttl time.Duration) (*domain.StationPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.fetchedAt) >= ttl {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *domain.StationPayload, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.fetchedAt = now
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, fetchedAt: now}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
