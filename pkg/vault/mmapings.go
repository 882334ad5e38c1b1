package vault

import (
	"sync"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/sysmap"
	"github.com/marmos91/dittovault/pkg/vault/resource"
)

// Mmapings is the set of windows mapped over one descriptor.
//
// Windows start on chunk boundaries. Chunks are laid out from bias on; the
// region before bias (a file header) is its own leading chunk.
//
// Thread Safety: Safe for concurrent use. mu is taken before the
// descriptor lock and before the caches.
type Mmapings struct {
	mu        sync.Mutex
	vault     *Vault
	desc      *FileDescriptor
	chunksize int64
	bias      int64
	windows   []*Mmap
	closed    bool
}

func newMmapings(v *Vault, d *FileDescriptor) *Mmapings {
	return &Mmapings{
		vault:     v,
		desc:      d,
		chunksize: d.chunksize,
		bias:      d.bias,
	}
}

// Chunksize returns the alignment granularity.
func (ms *Mmapings) Chunksize() int64 {
	return ms.chunksize
}

// Bias returns the offset the chunk grid starts at.
func (ms *Mmapings) Bias() int64 {
	return ms.bias
}

// Len returns the number of live windows.
func (ms *Mmapings) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.pruneLocked()
	return len(ms.windows)
}

// chunkFloor rounds off down to the chunk grid.
func (ms *Mmapings) chunkFloor(off int64) int64 {
	if off < ms.bias {
		return 0
	}
	return ms.bias + (off-ms.bias)/ms.chunksize*ms.chunksize
}

// chunkCeil rounds off up to the chunk grid.
func (ms *Mmapings) chunkCeil(off int64) int64 {
	if off <= ms.bias {
		if off == 0 {
			return 0
		}
		return ms.bias
	}
	return ms.bias + (off-ms.bias+ms.chunksize-1)/ms.chunksize*ms.chunksize
}

// Acquire returns a mapping of [start, start+size) of file. A window that
// already covers the range is reused; otherwise a new window is mapped.
func (ms *Mmapings) Acquire(file *File, start, size int64) (*Mapping, error) {
	if start < 0 || size <= 0 {
		return nil, newError("mmap", file.name, ErrInvalidRange)
	}
	if err := file.check(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return nil, newError("mmap", file.name, ErrClosed)
	}
	ms.pruneLocked()

	end := start + size
	if err := ms.ensureBackedLocked(file, start, end); err != nil {
		return nil, err
	}

	for _, m := range ms.windows {
		if !m.covers(start, end) {
			continue
		}
		if m.refcnt == 0 && !ms.vault.mmaps.Checkout(m) {
			// evicted since the prune above
			continue
		}
		return m.ref(start, size), nil
	}

	m, err := ms.createLocked(file, start, end)
	if err != nil {
		return nil, err
	}
	ms.windows = append(ms.windows, m)
	return m.ref(start, size), nil
}

// ensureBackedLocked makes sure the file extends over the chunk-aligned
// range. Writable files grow, read-only files fail past their end.
func (ms *Mmapings) ensureBackedLocked(file *File, start, end int64) error {
	v := ms.vault
	d := ms.desc

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.Writable() {
		if end > d.size {
			// another descriptor may have grown the file
			if err := v.refreshSizeLocked(d); err != nil {
				return newError("fstat", file.name, err)
			}
		}
		if end > d.size {
			return newError("mmap", file.name, ErrMmapNotWritable)
		}
		return nil
	}

	aend := ms.chunkCeil(end)
	if aend > d.size {
		if err := v.growLocked(d, aend); err != nil {
			return newError("ftruncate", file.name, err)
		}
	}
	if end > d.realSize {
		d.realSize = end
	}
	return nil
}

// createLocked maps a new window covering [start, end).
func (ms *Mmapings) createLocked(file *File, start, end int64) (*Mmap, error) {
	v := ms.vault
	d := ms.desc
	writable := d.Writable()

	astart := ms.chunkFloor(start)
	aend := ms.chunkCeil(end)

	d.mu.Lock()
	h, err := v.acquireHandleLocked(d)
	fileEnd := d.size
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer func() {
		d.mu.Lock()
		v.handles.Checkin(h)
		d.mu.Unlock()
	}()

	var length, required int64
	if writable {
		required = aend - astart
		length = required
		window := v.WindowSize() / ms.chunksize * ms.chunksize
		if length < window {
			grown := min(astart+window, ms.chunkCeil(fileEnd))
			if grown > aend {
				length = grown - astart
			}
		}
	} else {
		// read-only windows cover the request exactly
		page := int64(sysmap.PageSize())
		length = (end - astart + page - 1) / page * page
		required = length
	}

	region, err := v.mapWindow(ms, h.fd, astart, length, required, ms.chunksize, writable)
	if err != nil {
		return nil, &Error{Op: "mmap", Path: file.name, Err: err}
	}

	m := newMmap(ms, v.mmaps, region, ms.chunksize)
	v.mmaps.Announce(m, int64(region.Len()))
	logger.Debug("Mmap: mapped %s [%d, %d)", file.name, m.start, m.start+m.size)
	return m, nil
}

// pruneLocked drops windows evicted by the cache.
func (ms *Mmapings) pruneLocked() {
	live := ms.windows[:0]
	for _, m := range ms.windows {
		if !m.dead.Load() {
			live = append(live, m)
		}
	}
	for i := len(live); i < len(ms.windows); i++ {
		ms.windows[i] = nil
	}
	ms.windows = live
}

func (ms *Mmapings) removeLocked(m *Mmap) {
	for i, w := range ms.windows {
		if w == m {
			ms.windows = append(ms.windows[:i], ms.windows[i+1:]...)
			return
		}
	}
}

// reduceLocked shrinks the in-use windows and returns the bytes freed.
func (ms *Mmapings) reduceLocked() int64 {
	var freed int64
	for _, m := range ms.windows {
		if m.refcnt == 0 || m.dead.Load() {
			continue
		}
		if n := m.reduce(); n > 0 {
			ms.vault.mmaps.shrunk(n)
			freed += n
		}
	}
	return freed
}

// truncateLocked drops idle windows reaching past n and returns the end of
// the furthest window still in use.
func (ms *Mmapings) truncateLocked(n int64) int64 {
	ms.pruneLocked()

	inUseEnd := int64(0)
	kept := ms.windows[:0]
	for _, m := range ms.windows {
		end := m.start + m.size
		switch {
		case end <= n:
			kept = append(kept, m)
		case m.refcnt > 0:
			inUseEnd = max(inUseEnd, end)
			kept = append(kept, m)
		case ms.vault.mmaps.Checkout(m):
			ms.vault.mmaps.Forget(m)
			m.unmap()
		}
	}
	ms.windows = kept
	return inUseEnd
}

func (ms *Mmapings) syncLocked() error {
	for _, m := range ms.windows {
		if m.dead.Load() || !m.region.Writable() {
			continue
		}
		if err := m.region.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// destroy unmaps every window. All windows must be unused.
func (ms *Mmapings) destroy() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return
	}
	ms.pruneLocked()
	for _, m := range ms.windows {
		if m.refcnt > 0 {
			panic("vault: file destroyed while mappings are in use")
		}
	}
	for _, m := range ms.windows {
		if ms.vault.mmaps.Checkout(m) {
			ms.vault.mmaps.Forget(m)
			m.unmap()
		}
	}
	ms.windows = nil
	ms.closed = true
	ms.vault.live.Delete(ms)
}

// strategy is a recovery step taken after mmap failed.
type strategy int

const (
	firstTry strategy = iota
	dropFromCache
	reduceWindow
	reduceInUse
	giveUp
)

func (s strategy) String() string {
	switch s {
	case firstTry:
		return "first_try"
	case dropFromCache:
		return "drop_from_cache"
	case reduceWindow:
		return "reduce_window"
	case reduceInUse:
		return "reduce_in_use"
	default:
		return "give_up"
	}
}

// mapWindow maps length bytes at start, backing off through the recovery
// strategies while the address space is exhausted. The window never shrinks
// below required. self is the caller's Mmapings (locked) or nil.
func (v *Vault) mapWindow(self *Mmapings, fd int, start, length, required, chunk int64, writable bool) (*sysmap.Region, error) {
	s := firstTry
	for {
		if v.mmaps.Reserve(length) {
			region, err := sysmap.Map(fd, start, int(length), writable)
			v.metrics.ObserveMmapAttempt(s.String(), err == nil)
			if err == nil {
				return region, nil
			}
			v.mmaps.Unreserve(length)
			if !sysmap.IsOutOfMemory(err) {
				return nil, err
			}
		} else {
			v.metrics.ObserveMmapAttempt(s.String(), false)
		}

		logger.Debug("Mmap: no address space for %d bytes after %s", length, s)
		if !v.recoverSpace(self, &s, &length, required, chunk) {
			v.metrics.ObserveMmapAttempt(giveUp.String(), false)
			return nil, ErrMmapSpace
		}
	}
}

// recoverSpace advances through the strategies until one frees something.
// It returns false when every strategy is exhausted.
func (v *Vault) recoverSpace(self *Mmapings, s *strategy, length *int64, required, chunk int64) bool {
	for {
		switch *s {
		case firstTry:
			*s = dropFromCache
			try := resource.TryOne
			if v.collector.RunUntil(resource.Mmap, &try, resource.TryOne, nil) {
				return true
			}

		case dropFromCache:
			*s = reduceWindow

		case reduceWindow:
			if *length > required {
				old := *length
				half := max(required, (old/2+chunk-1)/chunk*chunk)
				*length = half
				v.shrinkWindow(old, half)
				return true
			}
			*s = reduceInUse
			try := resource.TryOne
			if v.collector.RunUntil(resource.Mmap, &try, resource.TryAll, nil) {
				return true
			}

		case reduceInUse:
			if v.reduceInUse(self, *length) > 0 {
				return true
			}
			*s = giveUp

		default:
			return false
		}
	}
}

// reduceInUse shrinks in-use windows of every file until need bytes were
// freed. Files whose Mmapings are busy are skipped.
func (v *Vault) reduceInUse(self *Mmapings, need int64) int64 {
	var freed int64
	v.live.Range(func(key, _ any) bool {
		ms := key.(*Mmapings)
		if ms == self {
			freed += ms.reduceLocked()
		} else if ms.mu.TryLock() {
			if !ms.closed {
				freed += ms.reduceLocked()
			}
			ms.mu.Unlock()
		}
		return freed < need
	})
	if freed > 0 {
		logger.Debug("Mmap: reduced in-use windows by %d bytes", freed)
	}
	return freed
}
