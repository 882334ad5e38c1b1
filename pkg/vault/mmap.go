package vault

import (
	"sync/atomic"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/sysmap"
	"github.com/marmos91/dittovault/pkg/vault/mru"
)

// Mmap is one contiguous mapped window over a file.
//
// refmap counts the references per chunk of the window so in-use windows
// can give back an unreferenced tail under address-space pressure. While
// refcnt is zero the window sits in the MmapCache and may be evicted at any
// time; an evicted window is flagged dead and pruned by its owner.
//
// start, size, refmap and refcnt are guarded by the owner's Mmapings lock
// (the caller for exact mappings), node and lastUsed by the MmapCache lock.
type Mmap struct {
	owner  *Mmapings
	cache  *MmapCache
	region *sysmap.Region

	start  int64
	size   int64
	chunk  int64
	refmap []uint16
	refcnt int

	node     mru.Node
	lastUsed time.Time
	dead     atomic.Bool
}

func newMmap(owner *Mmapings, cache *MmapCache, region *sysmap.Region, chunk int64) *Mmap {
	size := int64(region.Len())
	return &Mmap{
		owner:  owner,
		cache:  cache,
		region: region,
		start:  region.Offset(),
		size:   size,
		chunk:  chunk,
		refmap: make([]uint16, (size+chunk-1)/chunk),
	}
}

// Start returns the file offset of the first mapped byte.
func (m *Mmap) Start() int64 {
	return m.start
}

// Size returns the mapped length.
func (m *Mmap) Size() int64 {
	return m.size
}

// Bytes returns the whole mapped window.
func (m *Mmap) Bytes() []byte {
	return m.region.Bytes()
}

// Addr returns the address of the first mapped byte.
func (m *Mmap) Addr() uintptr {
	return m.region.Addr()
}

// Refcnt returns the number of active users.
func (m *Mmap) Refcnt() int {
	return m.refcnt
}

func (m *Mmap) covers(start, end int64) bool {
	return !m.dead.Load() && m.start <= start && end <= m.start+m.size
}

func (m *Mmap) chunkRange(start, size int64) (int64, int64) {
	first := (start - m.start) / m.chunk
	last := (start + size - 1 - m.start) / m.chunk
	if last >= int64(len(m.refmap)) {
		last = int64(len(m.refmap)) - 1
	}
	return first, last
}

// ref registers one user of [start, start+size).
func (m *Mmap) ref(start, size int64) *Mapping {
	first, last := m.chunkRange(start, size)
	for i := first; i <= last; i++ {
		if m.refmap[i] == ^uint16(0) {
			panic("vault: mmap chunk reference overflow")
		}
		m.refmap[i]++
	}
	m.refcnt++
	return &Mapping{mmap: m, start: start, size: size}
}

// unref drops a user; it reports whether the window became idle.
func (m *Mmap) unref(start, size int64) bool {
	first, last := m.chunkRange(start, size)
	for i := first; i <= last; i++ {
		m.refmap[i]--
	}
	m.refcnt--
	return m.refcnt == 0
}

// reduce unmaps the unreferenced tail of an in-use window, halving the
// window as long as the dropped half holds no reference. It returns the
// number of bytes given back.
func (m *Mmap) reduce() int64 {
	used := 0
	for i, n := range m.refmap {
		if n > 0 {
			used = i + 1
		}
	}

	keep := len(m.refmap)
	for keep/2 > 0 && keep/2 >= used {
		keep /= 2
	}
	newSize := int64(keep) * m.chunk
	if keep == len(m.refmap) || newSize >= m.size {
		return 0
	}

	if err := m.region.Shrink(int(newSize)); err != nil {
		logger.Debug("Mmap: shrink window at %d to %d: %v", m.start, newSize, err)
		return 0
	}
	freed := m.size - newSize
	m.size = newSize
	m.refmap = m.refmap[:keep]
	return freed
}

func (m *Mmap) unmap() {
	if err := m.region.Unmap(); err != nil {
		logger.Warn("Mmap: unmap window at %d (%d bytes): %v", m.start, m.size, err)
	}
}

// Delete unmaps the window right away instead of returning it to the cache.
// At most the caller itself may still reference it.
func (m *Mmap) Delete() {
	if ms := m.owner; ms != nil {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		ms.removeLocked(m)
	}
	m.deleteLocked()
}

func (m *Mmap) deleteLocked() {
	if m.refcnt > 1 {
		panic("vault: delete of mmap still in use")
	}
	if m.refcnt == 0 && !m.cache.Checkout(m) {
		// already evicted
		return
	}
	m.refcnt = 0
	m.cache.Forget(m)
	m.unmap()
}

// Mapping is a client's reference to a byte range inside a window. Release
// must be called exactly once the bytes are no longer used; further calls
// are no-ops.
type Mapping struct {
	mmap     *Mmap
	start    int64
	size     int64
	released atomic.Bool
}

// Bytes returns the mapped bytes of the requested range.
func (mp *Mapping) Bytes() []byte {
	off := mp.start - mp.mmap.start
	return mp.mmap.region.Bytes()[off : off+mp.size : off+mp.size]
}

// Addr returns the address of the first requested byte.
func (mp *Mapping) Addr() uintptr {
	return mp.mmap.Addr() + uintptr(mp.start-mp.mmap.start)
}

// Offset returns the file offset of the requested range.
func (mp *Mapping) Offset() int64 {
	return mp.start
}

// Len returns the length of the requested range.
func (mp *Mapping) Len() int64 {
	return mp.size
}

// Window returns the window backing the mapping.
func (mp *Mapping) Window() *Mmap {
	return mp.mmap
}

// Release returns the reference. The window goes back to the cache when its
// last reference is released.
func (mp *Mapping) Release() {
	if !mp.released.CompareAndSwap(false, true) {
		return
	}

	m := mp.mmap
	ms := m.owner
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if m.unref(mp.start, mp.size) {
		m.cache.Checkin(m)
	}
}
