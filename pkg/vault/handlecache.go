package vault

import (
	"sync"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/ratelimiter"
	"github.com/marmos91/dittovault/internal/sysmap"
	"github.com/marmos91/dittovault/pkg/vault/mru"
	"github.com/marmos91/dittovault/pkg/vault/resource"
)

// FileHandle wraps one OS descriptor. The descriptor is opened lazily on
// first use after the handle was handed to a FileDescriptor, and a handle is
// recycled across descriptors once it becomes idle.
//
// useCnt, owner and node belong to the HandleCache and are only touched
// under its lock. fd is written by the owning descriptor while the handle is
// checked out.
type FileHandle struct {
	fd       int
	useCnt   int
	owner    *FileDescriptor
	node     mru.Node
	lastUsed time.Time
}

// FD returns the OS descriptor, or -1 if it was not opened yet.
func (h *FileHandle) FD() int {
	return h.fd
}

// HandleStats is a snapshot of the handle quota.
type HandleStats struct {
	Quota      int `json:"quota" yaml:"quota"`
	Available  int `json:"available" yaml:"available"`
	CheckedOut int `json:"checked_out" yaml:"checked_out"`
	Allocated  int `json:"allocated" yaml:"allocated"`
	Idle       int `json:"idle" yaml:"idle"`
}

// HandleCache bounds the number of live OS descriptors.
//
// available starts at the quota and is decremented for every allocated
// handle; it goes negative when the cache overallocates. Idle handles are
// kept in MRU order and are either taken over by another descriptor when
// the quota is exhausted, or closed by aging.
//
// Thread Safety: Safe for concurrent use. Descriptors are closed outside
// the cache lock.
type HandleCache struct {
	mu         sync.Mutex
	idle       *mru.Cache[*FileHandle]
	quota      int
	available  int
	checkedOut int
	allocated  int
	retired    []int
	closed     bool

	notice    *ratelimiter.RateLimiter
	metrics   Metrics
	collector *resource.Collector
	reg       *resource.Registration
	now       func() time.Time
}

func newHandleCache(quota int, collector *resource.Collector, metrics Metrics) *HandleCache {
	c := &HandleCache{
		quota:     quota,
		available: quota,
		notice:    ratelimiter.New(1, 1),
		metrics:   metrics,
		collector: collector,
		now:       time.Now,
	}
	c.idle = mru.New(c.retireLocked)
	c.reg = collector.Register(resource.FileHandle, "filehandlecache", c.collect, nil)
	return c
}

// retireLocked forgets an idle handle and queues its descriptor for closing.
func (c *HandleCache) retireLocked(h *FileHandle) {
	if h.fd >= 0 {
		c.retired = append(c.retired, h.fd)
	}
	h.fd = -1
	h.owner = nil
	h.node = mru.Node{}
	c.allocated--
	c.available++
}

// unlock releases the cache lock and closes every descriptor retired while
// it was held.
func (c *HandleCache) unlock() {
	fds := c.retired
	c.retired = nil
	c.mu.Unlock()

	for _, fd := range fds {
		if err := sysmap.Close(fd); err != nil {
			logger.Debug("Handle cache: close fd %d: %v", fd, err)
		}
	}
}

// Acquire hands out a checked-out handle owned by d. When the quota is used
// up and idle handles exist, the oldest idle handle is taken over;
// otherwise a new handle is allocated even beyond quota.
func (c *HandleCache) Acquire(d *FileDescriptor) *FileHandle {
	c.mu.Lock()
	defer c.unlock()

	var h *FileHandle
	reused := false

	if c.available <= 0 && c.idle.Len() > 0 {
		h, _ = c.idle.Pop()
		if h.fd >= 0 {
			c.retired = append(c.retired, h.fd)
		}
		h.fd = -1
		reused = true

		// Give back surplus from earlier overallocation
		if c.available < 0 {
			c.idle.Age(min(-c.available, c.idle.Len()))
		}
	} else {
		if c.available <= 0 {
			c.metrics.ObserveHandleOverallocation()
			if c.notice.Allow() {
				logger.Warn("Overallocating file handles: quota=%d allocated=%d (%d notices suppressed)",
					c.quota, c.allocated+1, c.notice.TakeSuppressed())
			}
		}
		h = &FileHandle{fd: -1}
		c.available--
		c.allocated++
	}

	h.owner = d
	h.node = mru.Node{}
	h.useCnt = 1
	c.checkedOut++
	c.metrics.ObserveHandleAcquire(reused)

	return h
}

// Checkout marks h in use by d. It returns false when h was taken over by
// another descriptor (or closed) while it was idle; the caller must Acquire
// a new one.
func (c *HandleCache) Checkout(h *FileHandle, d *FileDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || h.owner != d {
		return false
	}
	if h.useCnt == 0 {
		c.idle.Checkout(h.node)
		h.node = mru.Node{}
		c.checkedOut++
	}
	h.useCnt++
	return true
}

// Checkin releases one use of h. The last use makes it idle.
func (c *HandleCache) Checkin(h *FileHandle) {
	c.mu.Lock()
	defer c.unlock()

	if h.useCnt <= 0 {
		panic("vault: checkin of idle file handle")
	}
	h.useCnt--
	if h.useCnt > 0 {
		return
	}

	c.checkedOut--
	h.lastUsed = c.now()
	if c.closed {
		c.retireLocked(h)
		return
	}
	h.node = c.idle.Checkin(h)
}

// Drop closes h when it is still owned by d. Used when d is destroyed.
func (c *HandleCache) Drop(h *FileHandle, d *FileDescriptor) {
	if h == nil {
		return
	}

	c.mu.Lock()
	defer c.unlock()

	if h.owner != d {
		return
	}
	if h.useCnt > 0 {
		panic("vault: drop of checked out file handle")
	}
	c.idle.Checkout(h.node)
	c.retireLocked(h)
}

// Trim closes idle handles unused for longer than maxIdle.
func (c *HandleCache) Trim(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.unlock()

	cutoff := c.now().Add(-maxIdle)
	return c.idle.AgeWhile(func(h *FileHandle) bool {
		return h.lastUsed.Before(cutoff)
	})
}

// Stats returns a snapshot of the quota counters.
func (c *HandleCache) Stats() HandleStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return HandleStats{
		Quota:      c.quota,
		Available:  c.available,
		CheckedOut: c.checkedOut,
		Allocated:  c.allocated,
		Idle:       c.idle.Len(),
	}
}

// Close closes all idle handles. A checked-out handle at this point is a
// lifecycle bug and panics.
func (c *HandleCache) Close() {
	c.collector.Unregister(c.reg)

	c.mu.Lock()
	defer c.unlock()

	if c.checkedOut > 0 {
		panic("vault: file handle cache closed with checked out handles")
	}
	c.idle.Age(-1)
	c.closed = true
}

// collect is the FileHandle handler of the resource collector.
func (c *HandleCache) collect(try resource.Try, _ any, _ any) resource.Try {
	if try == resource.TryUnregister {
		return resource.TryNone
	}

	c.mu.Lock()
	defer c.unlock()

	if c.idle.Len() == 0 {
		return resource.TryNone
	}
	aged := c.idle.Age(ageCount(try, c.idle.Len()))
	logger.Debug("Handle cache: closed %d idle handles at level %s", aged, try)
	if aged == 0 {
		return resource.TryNone
	}
	return try
}

// ageCount maps an escalation level to the number of idle entries to free.
func ageCount(try resource.Try, idle int) int {
	switch try {
	case resource.TryOne:
		return min(1, idle)
	case resource.TrySome:
		return max(1, idle/8)
	case resource.TryMany:
		return max(1, idle/2)
	default:
		return idle
	}
}
