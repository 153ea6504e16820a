// Package cache provides an in-process TTL cache with stale-while-revalidate
// semantics. Expired entries are kept for one extra TTL so readers can be
// served the stale value while a single-flight background refresh runs.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the time-to-live applied when a caller passes zero.
const DefaultTTL = 600 * time.Second

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 5 * time.Minute

// refreshTimeout bounds a background refresh detached from its caller.
const refreshTimeout = 30 * time.Second

type entry[V any] struct {
	value      V
	insertedAt time.Time
	expiresAt  time.Time
	ttl        time.Duration
}

// Cache is a keyed TTL cache safe for concurrent use.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	group   singleflight.Group
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a Cache with the given default TTL.
func New[V any](ttl time.Duration, logger *slog.Logger) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		logger:  logger.With("component", "cache"),
	}
}

// Get returns a fresh entry.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale returns an entry regardless of freshness. The stale flag is
// true when the entry is past its TTL.
func (c *Cache[V]) GetStale(key string) (value V, stale, ok bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()
	if !found {
		var zero V
		return zero, false, false
	}
	return e.value, time.Now().After(e.expiresAt), true
}

// Set stores a value under the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores a value with an explicit TTL.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = entry[V]{
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
		ttl:        ttl,
	}
	c.mu.Unlock()
}

// Delete removes an entry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, fresh or stale.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// WithCache memoizes fetcher under key.
//
//   - Fresh hit: the cached value is returned.
//   - Stale hit: the stale value is returned immediately and a background
//     refresh is spawned; concurrent stale readers share one refresh
//     (single-flight) and refresh failures are logged, never propagated.
//   - Miss: fetcher runs synchronously; concurrent missers share its result.
func (c *Cache[V]) WithCache(ctx context.Context, key string, ttl time.Duration, fetcher func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	if v, stale, ok := c.GetStale(key); ok && stale {
		go c.refresh(key, ttl, fetcher)
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		c.SetTTL(key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// refresh runs a detached single-flight reload for a stale key.
func (c *Cache[V]) refresh(key string, ttl time.Duration, fetcher func(ctx context.Context) (V, error)) {
	_, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have refreshed already.
		if _, ok := c.Get(key); ok {
			return nil, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		value, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		c.SetTTL(key, value, ttl)
		return nil, nil
	})
	if err != nil {
		c.logger.Warn("background refresh failed", "key", key, "error", err)
	}
}

// Sweep removes entries that have been expired for longer than their own
// TTL, i.e. past the stale-serving window. Returns the number removed.
func (c *Cache[V]) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt.Add(e.ttl)) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on an interval until ctx is cancelled.
func (c *Cache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("cache sweep", "removed", n)
				}
			}
		}
	}()
}
