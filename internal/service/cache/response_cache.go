package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
)

// Entry is one cached logical metric value with provenance.
type Entry struct {
	Key       models.MetricKey
	Value     float64
	Source    string
	FetchedAt time.Time
	TTL       time.Duration
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

func WithMaxEntries(n int) Option {
	return func(c *ResponseCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *ResponseCache) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

func WithTTLs(fast, slow time.Duration) Option {
	return func(c *ResponseCache) {
		if fast > 0 {
			c.fastTTL = fast
		}
		if slow > 0 {
			c.slowTTL = slow
		}
	}
}

// ResponseCache is a TTL-keyed store of previously fetched logical metric
// values. Expiry is checked lazily on read; a background sweep removes
// expired entries and enforces a hard cap by evicting oldest-fetched first.
type ResponseCache struct {
	clock      repository.Clock
	fastTTL    time.Duration
	slowTTL    time.Duration
	sweepEvery time.Duration
	maxEntries int

	mu     sync.RWMutex
	m      map[models.MetricKey]*Entry
	stopCh chan struct{}
	once   sync.Once
}

func NewResponseCache(clock repository.Clock, opts ...Option) *ResponseCache {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	c := &ResponseCache{
		clock:      clock,
		fastTTL:    5 * time.Minute,
		slowTTL:    15 * time.Minute,
		sweepEvery: time.Minute,
		maxEntries: 10000,
		m:          make(map[models.MetricKey]*Entry),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLFor returns the TTL for a metric's data class.
func (c *ResponseCache) TTLFor(t models.DataType) time.Duration {
	if t.FastMoving() {
		return c.fastTTL
	}
	return c.slowTTL
}

// Get returns the cached entry for key, or nil when absent or expired.
// Expired entries are not served even if the sweep has not reached them.
func (c *ResponseCache) Get(key models.MetricKey) *Entry {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if e.expired(c.clock.Now()) {
		c.mu.Lock()
		// re-check: a fresher put may have raced the expiry
		if cur, ok := c.m[key]; ok && cur.expired(c.clock.Now()) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil
	}
	return e
}

// Put stores a value under the data class TTL, recording which provider
// supplied it.
func (c *ResponseCache) Put(key models.MetricKey, value float64, source string) {
	c.PutTTL(key, value, source, c.TTLFor(key.DataType))
}

// PutTTL stores a value with an explicit TTL.
func (c *ResponseCache) PutTTL(key models.MetricKey, value float64, source string, ttl time.Duration) {
	e := &Entry{
		Key:       key,
		Value:     value,
		Source:    source,
		FetchedAt: c.clock.Now(),
		TTL:       ttl,
	}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
}

// Len reports the number of entries, expired ones included.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Start launches the background sweep loop. It runs on a fixed interval
// independent of request traffic and stops when ctx is done or Stop is
// called.
func (c *ResponseCache) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(c.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// Stop halts the sweep loop.
func (c *ResponseCache) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

// Sweep removes expired entries, then evicts oldest-fetched entries while
// over the cap. It returns how many entries were removed.
func (c *ResponseCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
			removed++
		}
	}

	if len(c.m) > c.maxEntries {
		entries := make([]*Entry, 0, len(c.m))
		for _, e := range c.m {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].FetchedAt.Before(entries[j].FetchedAt)
		})
		for _, e := range entries[:len(c.m)-c.maxEntries] {
			delete(c.m, e.Key)
			removed++
		}
	}
	return removed
}
