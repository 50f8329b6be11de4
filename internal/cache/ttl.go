package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or its entry has expired.
	// A stored zero value is a hit, never ErrMiss.
	ErrMiss = errors.New("cache: miss")

	// ErrMissingKey is returned by a Memoize wrapper when the key cannot be
	// derived from the call arguments.
	ErrMissingKey = errors.New("cache: missing key argument")
)

// entry holds a cached value and its absolute deadline. A zero deadline
// never expires.
type entry[V any] struct {
	value    V
	deadline time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	observe func(hit bool)
}

// WithClock replaces time.Now as the cache's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver registers fn to be called on every lookup with whether it hit.
func WithObserver(fn func(hit bool)) Option {
	return func(o *options) { o.observe = fn }
}

// TTL is a concurrency-safe memoization cache with one time-to-live applied
// to every entry it stores. Expired entries are evicted lazily, on the next
// lookup of their key; there is no background sweep.
//
// Concurrent misses for the same key are not coalesced: each caller of
// GetOrCompute may run its compute function. The map still holds at most one
// entry per key afterwards.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time
	observe func(hit bool)
}

// New returns an empty cache. A ttl <= 0 means entries never expire.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     o.now,
		observe: o.observe,
	}
}

// TTL returns the configured time-to-live; zero means no expiry.
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key, or ErrMiss. An expired entry is removed
// as part of this call.
func (c *TTL[K, V]) Get(key K) (V, error) {
	c.mu.Lock()
	v, ok := c.getLocked(key)
	c.mu.Unlock()

	if c.observe != nil {
		c.observe(ok)
	}
	if !ok {
		var zero V
		return zero, ErrMiss
	}
	return v, nil
}

// Set stores v under key with a fresh deadline, replacing any existing entry.
func (c *TTL[K, V]) Set(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: v}
	if c.ttl > 0 {
		e.deadline = c.now().Add(c.ttl)
	}
	c.entries[key] = e
}

// Invalidate drops the entry for key, if any.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries. Expired entries that have not
// been looked up since expiring are still counted.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrCompute returns the live value for key. On a miss it calls compute once,
// stores the result and returns it. If compute fails, nothing is stored and
// the error is returned unchanged.
//
// compute runs without the cache lock held.
func (c *TTL[K, V]) GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	if v, err := c.Get(key); err == nil {
		return v, nil
	}

	v, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, v)
	return v, nil
}

// getLocked returns the live value for key and evicts it if expired.
// Caller must hold c.mu.
func (c *TTL[K, V]) getLocked(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}
