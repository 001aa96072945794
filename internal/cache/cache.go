// Package cache memoizes ledger reads for a short TTL.
//
// Keys are namespaced by table ("tasks:open", "decisions:all") so a write to
// a table can drop every key built under it with Invalidate(table + ":").
// The cache never returns an error of its own; failures of the wrapped query
// pass through and are not stored.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/telemetry"
)

type entry struct {
	value     any
	expiresAt int64
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cache holds memoized query results keyed by query identity.
// Safe for concurrent use.
type Cache struct {
	clock  ir.Clock
	logger *slog.Logger
	inst   *telemetry.Instruments

	mu      sync.RWMutex
	entries map[string]entry
	hits    int64
	misses  int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithInstruments sets the metric instruments for hit/miss counters.
func WithInstruments(m *telemetry.Instruments) Option {
	return func(c *Cache) { c.inst = m }
}

// New creates an empty cache reading expiry times from clock.
func New(clock ir.Clock, opts ...Option) *Cache {
	c := &Cache{
		clock:   clock,
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.inst == nil {
		c.inst = telemetry.Default()
	}
	return c
}

// Query returns the live entry for key, or calls fn and stores its result
// until now+ttl. Errors from fn are returned unchanged and nothing is stored.
//
// Concurrent misses on one key may each call fn; the last result stored wins.
func Query[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		if typed, ok := v.(T); ok {
			c.record(ctx, key, true)
			return typed, nil
		}
	}
	c.record(ctx, key, false)

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.store(key, v, ttl)
	return v, nil
}

func (c *Cache) lookup(key string) (any, bool) {
	now := c.clock.NowMillis()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || now >= e.expiresAt {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, v any, ttl time.Duration) {
	expires := c.clock.NowMillis() + ttl.Milliseconds()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: v, expiresAt: expires}
}

func (c *Cache) record(ctx context.Context, key string, hit bool) {
	ns := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		ns = key[:i]
	}
	attrs := metric.WithAttributes(attribute.String("namespace", ns))

	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if hit {
		c.inst.CacheHits.Add(ctx, 1, attrs)
	} else {
		c.inst.CacheMisses.Add(ctx, 1, attrs)
	}
}

// Invalidate removes every key starting with prefix. An empty prefix clears
// the whole cache.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" {
		n := len(c.entries)
		clear(c.entries)
		c.logger.Debug("cache cleared", "removed", n)
		return n
	}

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.logger.Debug("cache invalidated", "prefix", prefix, "removed", n)
	}
	return n
}

// Purge drops expired entries and returns how many were removed. Expired
// entries are never served, so this only reclaims memory.
func (c *Cache) Purge() int {
	now := c.clock.NowMillis()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now >= e.expiresAt {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats reports hit and miss totals and the current entry count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
