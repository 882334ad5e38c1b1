package vault

import (
	"sync"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/vault/mru"
	"github.com/marmos91/dittovault/pkg/vault/resource"
)

// MmapStats is a snapshot of the mapped address space.
type MmapStats struct {
	Total   int64 `json:"total" yaml:"total"`
	Limit   int64 `json:"limit" yaml:"limit"`
	Windows int   `json:"windows" yaml:"windows"`
	Idle    int   `json:"idle" yaml:"idle"`
	InUse   int   `json:"in_use" yaml:"in_use"`
}

// MmapCache bounds the total mapped address space and keeps released
// windows around for reuse until they are evicted.
//
// Eviction never takes an Mmapings lock: the victim is flagged dead under
// the cache lock and unmapped after it is released. Owners drop dead
// windows from their lists on their next pass.
//
// Thread Safety: Safe for concurrent use.
type MmapCache struct {
	mu      sync.Mutex
	idle    *mru.Cache[*Mmap]
	total   int64
	limit   int64
	windows int
	evicted []*Mmap
	closed  bool

	metrics   Metrics
	collector *resource.Collector
	reg       *resource.Registration
	now       func() time.Time
}

func newMmapCache(limit int64, collector *resource.Collector, metrics Metrics) *MmapCache {
	c := &MmapCache{
		limit:     limit,
		metrics:   metrics,
		collector: collector,
		now:       time.Now,
	}
	c.idle = mru.New(c.evictLocked)
	c.reg = collector.Register(resource.Mmap, "mmapcache", c.collect, nil)
	return c
}

func (c *MmapCache) evictLocked(m *Mmap) {
	m.dead.Store(true)
	m.node = mru.Node{}
	c.total -= m.size
	c.windows--
	c.evicted = append(c.evicted, m)
}

// unlock releases the cache lock and unmaps the windows evicted meanwhile.
func (c *MmapCache) unlock() {
	victims := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	for _, m := range victims {
		m.unmap()
	}
	if len(victims) > 0 {
		c.metrics.ObserveMmapEvictions(len(victims))
	}
}

// Reserve makes room for a new window of length bytes by evicting idle
// windows while the limit would be exceeded. When the window fits, length is
// accounted right away, so concurrent creators cannot share the same
// headroom. A successful Reserve is followed by Announce or Unreserve.
func (c *MmapCache) Reserve(length int64) bool {
	c.mu.Lock()
	defer c.unlock()

	for c.total+length > c.limit && c.idle.Len() > 0 {
		c.idle.Age(1)
	}
	if c.total+length > c.limit {
		return false
	}
	c.total += length
	return true
}

// Unreserve gives back a reservation whose mapping failed.
func (c *MmapCache) Unreserve(length int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total -= length
}

// Announce turns the reservation of a freshly mapped window into an in-use
// window of its actual size.
func (c *MmapCache) Announce(m *Mmap, reserved int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total += m.size - reserved
	c.windows++
}

// Forget removes an unmapped in-use window from the accounting.
func (c *MmapCache) Forget(m *Mmap) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total -= m.size
	c.windows--
}

// shrunk accounts n bytes given back by an in-use window.
func (c *MmapCache) shrunk(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total -= n
}

// Checkout reactivates an idle window. It returns false when the window was
// evicted in the meantime.
func (c *MmapCache) Checkout(m *Mmap) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.dead.Load() {
		return false
	}
	if _, ok := c.idle.Checkout(m.node); !ok {
		return false
	}
	m.node = mru.Node{}
	return true
}

// Checkin makes an unused window idle and evictable.
func (c *MmapCache) Checkin(m *Mmap) {
	c.mu.Lock()
	defer c.unlock()

	m.lastUsed = c.now()
	if c.closed {
		c.evictLocked(m)
		return
	}
	m.node = c.idle.Checkin(m)
}

// Age evicts up to n of the oldest idle windows.
func (c *MmapCache) Age(n int) int {
	c.mu.Lock()
	defer c.unlock()

	return c.idle.Age(n)
}

// Trim evicts idle windows unused for longer than maxIdle.
func (c *MmapCache) Trim(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.unlock()

	cutoff := c.now().Add(-maxIdle)
	return c.idle.AgeWhile(func(m *Mmap) bool {
		return m.lastUsed.Before(cutoff)
	})
}

// Stats returns a snapshot of the accounting.
func (c *MmapCache) Stats() MmapStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return MmapStats{
		Total:   c.total,
		Limit:   c.limit,
		Windows: c.windows,
		Idle:    c.idle.Len(),
		InUse:   c.windows - c.idle.Len(),
	}
}

// Close unmaps every idle window. Windows still in use are a lifecycle bug
// and panic.
func (c *MmapCache) Close() {
	c.collector.Unregister(c.reg)

	c.mu.Lock()
	defer c.unlock()

	if inUse := c.windows - c.idle.Len(); inUse > 0 {
		panic("vault: mmap cache closed with windows in use")
	}
	c.idle.Age(-1)
	c.closed = true
}

// collect is the Mmap handler of the resource collector.
func (c *MmapCache) collect(try resource.Try, _ any, _ any) resource.Try {
	if try == resource.TryUnregister {
		return resource.TryNone
	}

	c.mu.Lock()
	defer c.unlock()

	if c.idle.Len() == 0 {
		return resource.TryNone
	}
	aged := c.idle.Age(ageCount(try, c.idle.Len()))
	logger.Debug("Mmap cache: evicted %d idle windows at level %s", aged, try)
	if aged == 0 {
		return resource.TryNone
	}
	return try
}
