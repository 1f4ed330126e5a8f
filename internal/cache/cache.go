// Package cache provides TTL-based caching for API responses so repeated
// reads inside the freshness window never reach the network.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is used when a caller stores a value without a positive TTL
	DefaultTTL = 5 * time.Minute

	// DefaultCleanupInterval is how often Start sweeps expired entries
	DefaultCleanupInterval = 10 * time.Minute
)

// Entry represents a cached value with the time it was stored
type Entry[T any] struct {
	Value    T
	StoredAt mclock.AbsTime
	TTL      time.Duration
}

// IsExpired returns true once ttl has fully elapsed since the entry was stored
func (e *Entry[T]) IsExpired(now mclock.AbsTime) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	// TTL is the default time-to-live for Set
	TTL time.Duration

	// CleanupInterval is the sweep period used by Start
	CleanupInterval time.Duration

	// SingleFlight coalesces concurrent GetOrFetch misses for the same key
	// into one producer call. Off by default: two concurrent misses may
	// both invoke the producer.
	SingleFlight bool

	// Clock is the time source (mclock.System when nil)
	Clock mclock.Clock
}

// Stats is a point-in-time snapshot of the cache
type Stats struct {
	Size   int
	Hits   int64
	Misses int64
	Keys   []string
}

// Producer computes a value on a cache miss
type Producer[T any] func(ctx context.Context) (T, error)

// Cache is a generic TTL-based cache
type Cache[T any] struct {
	data  map[string]*Entry[T]
	mu    sync.RWMutex
	ttl   time.Duration
	sweep time.Duration
	clock mclock.Clock

	singleFlight bool
	group        singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new cache. Call Start to enable the periodic sweep.
func New[T any](opts Options) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Clock == nil {
		opts.Clock = mclock.System{}
	}
	return &Cache[T]{
		data:         make(map[string]*Entry[T]),
		ttl:          opts.TTL,
		sweep:        opts.CleanupInterval,
		clock:        opts.Clock,
		singleFlight: opts.SingleFlight,
	}
}

// Get retrieves a value from the cache.
// Returns the value and true if found and not expired. An expired entry is
// evicted and reported as absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return v, ok
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	var zero T
	now := c.clock.Now()

	c.mu.RLock()
	entry, exists := c.data[key]
	if !exists {
		c.mu.RUnlock()
		return zero, false
	}
	if !entry.IsExpired(now) {
		v := entry.Value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	// Only drop the entry we saw; a concurrent Set may have replaced it.
	if cur, ok := c.data[key]; ok && cur == entry {
		delete(c.data, key)
	}
	c.mu.Unlock()
	return zero, false
}

// Set stores a value in the cache with the default TTL
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL, overwriting any existing entry
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &Entry[T]{
		Value:    value,
		StoredAt: c.clock.Now(),
		TTL:      ttl,
	}
}

// GetOrFetch returns the cached value for key, or runs produce and caches its
// result. A failing producer caches nothing and its error is returned as is.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, produce Producer[T], ttl time.Duration) (T, error) {
	v, _, err := c.Fetch(ctx, key, produce, ttl)
	return v, err
}

// flight is the shared result of a coalesced fetch
type flight[T any] struct {
	value T
	hit   bool
}

// Fetch is GetOrFetch that also reports whether the value was served from
// the cache. Each call counts exactly one hit or one miss.
//
// With SingleFlight the shared producer runs detached from any single
// caller's cancellation; a caller whose ctx ends stops waiting and gets
// ctx.Err() while the others still receive the result.
func (c *Cache[T]) Fetch(ctx context.Context, key string, produce Producer[T], ttl time.Duration) (T, bool, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	if !c.singleFlight {
		v, err := c.fetch(ctx, key, produce, ttl)
		return v, false, err
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the key while we queued.
		if v, ok := c.lookup(key); ok {
			return flight[T]{value: v, hit: true}, nil
		}
		v, err := c.fetch(context.WithoutCancel(ctx), key, produce, ttl)
		return flight[T]{value: v}, err
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		f := res.Val.(flight[T])
		return f.value, f.hit, nil
	}
}

func (c *Cache[T]) fetch(ctx context.Context, key string, produce Producer[T], ttl time.Duration) (T, error) {
	v, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.SetWithTTL(key, v, ttl)
	return v, nil
}

// Invalidate removes a value from the cache
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// InvalidateFunc removes every key for which match returns true and reports
// how many entries were dropped
func (c *Cache[T]) InvalidateFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.data {
		if match(key) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from the cache
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*Entry[T])
}

// Size returns the number of entries in the cache (including expired)
func (c *Cache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns size, hit/miss counters and the sorted key list
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	keys := make([]string, 0, len(c.data))
	for key := range c.data {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	sort.Strings(keys)

	return Stats{
		Size:   len(keys),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Keys:   keys,
	}
}

// Cleanup removes all expired entries and returns how many were dropped
func (c *Cache[T]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, entry := range c.data {
		if entry.IsExpired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Start periodically removes expired entries until ctx is done.
// This should be run in a goroutine.
func (c *Cache[T]) Start(ctx context.Context) {
	timer := c.clock.NewTimer(c.sweep)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			c.Cleanup()
			timer.Reset(c.sweep)
		}
	}
}
