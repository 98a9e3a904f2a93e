package hierarchy

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Cache maps a root NPN to its resolved downline.
type Cache interface {
	Get(ctx context.Context, root string) (Set, bool)
	Put(ctx context.Context, root string, set Set)
	Clear(ctx context.Context) error
	Close() error
}

type cacheEntry struct {
	set        Set
	resolvedAt time.Time
}

// MemoryCache is a process-local TTL cache. Expired entries are dropped on read
// and purged by a background sweep that starts on first use.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMemoryCache creates a cache. Non-positive durations select the defaults.
func NewMemoryCache(ttl, sweepInterval time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &MemoryCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		interval: sweepInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// WithClock overrides the time source, primarily for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, root string) (Set, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()

	e, ok := c.entries[root]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.resolvedAt) >= c.ttl {
		delete(c.entries, root)
		return nil, false
	}
	return e.set.Clone(), true
}

func (c *MemoryCache) Put(_ context.Context, root string, set Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
	c.entries[root] = cacheEntry{set: set.Clone(), resolvedAt: c.now()}
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for root, e := range c.entries {
		if now.Sub(e.resolvedAt) >= c.ttl {
			delete(c.entries, root)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper. The cache stays usable but is no longer swept.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	select {
	case <-c.stopCh:
		c.mu.Unlock()
		return nil
	default:
		close(c.stopCh)
	}
	// a later Get must not restart the sweeper
	c.started = true
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *MemoryCache) startLocked() {
	if c.started {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.sweepLoop()
}

func (c *MemoryCache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Running reports whether the background sweeper goroutine is active.
func (c *MemoryCache) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return false
	}
	select {
	case <-c.stopCh:
		return false
	default:
		return true
	}
}
