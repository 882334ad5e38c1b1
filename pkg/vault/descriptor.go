package vault

import (
	"sync"

	"github.com/google/btree"
	"golang.org/x/sys/unix"
)

// openModeMask removes the flags that only matter at open time, so files
// opened with and without O_CREAT share one descriptor.
const openModeMask = unix.O_CREAT | unix.O_EXCL | unix.O_TRUNC

// descriptorKey is the identity of a descriptor.
type descriptorKey struct {
	dev     uint64
	ino     uint64
	accmode int
}

func (k descriptorKey) less(o descriptorKey) bool {
	if k.dev != o.dev {
		return k.dev < o.dev
	}
	if k.ino != o.ino {
		return k.ino < o.ino
	}
	return k.accmode < o.accmode
}

// FileDescriptor is the canonical record of one underlying file opened with
// one access mode. All File objects opening the same inode with the same
// mode share it.
//
// Thread Safety: mu guards everything below it. The handle fields are
// additionally owned by the HandleCache and only mutated under its lock.
type FileDescriptor struct {
	key descriptorKey

	// refs counts File objects; guarded by the registry lock
	refs int

	mu sync.Mutex

	// size is the physical file size, realSize the logical size written
	// through the vault. Writable files are truncated back to realSize when
	// the descriptor is destroyed.
	size     int64
	realSize int64

	names     map[string]int
	handle    *FileHandle
	chunksize int64
	bias      int64
	mmapings  *Mmapings
	destroyed bool

	// advisory locking
	rw      sync.RWMutex
	lockCnt int
}

func newFileDescriptor(key descriptorKey, size int64) *FileDescriptor {
	return &FileDescriptor{
		key:      key,
		size:     size,
		realSize: size,
		names:    make(map[string]int),
	}
}

// Writable reports whether the descriptor was opened for writing.
func (d *FileDescriptor) Writable() bool {
	return d.key.accmode&unix.O_ACCMODE != unix.O_RDONLY
}

// openFlags returns the flags used for the lazy open of the handle.
func (d *FileDescriptor) openFlags() int {
	return d.key.accmode
}

// path returns one of the names the descriptor was opened under.
// Caller holds d.mu.
func (d *FileDescriptor) path() string {
	best := ""
	for name := range d.names {
		if best == "" || name < best {
			best = name
		}
	}
	return best
}

// registry canonicalizes descriptors by (dev, ino, accmode).
type registry struct {
	mu    sync.Mutex
	tree  *btree.BTreeG[*FileDescriptor]
	probe FileDescriptor
}

func newRegistry() *registry {
	return &registry{
		tree: btree.NewG(8, func(a, b *FileDescriptor) bool {
			return a.key.less(b.key)
		}),
	}
}

// ensure returns the descriptor for key, creating it with build on a miss.
// The returned descriptor carries one more reference.
func (r *registry) ensure(key descriptorKey, build func() *FileDescriptor) (*FileDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.probe.key = key
	if d, ok := r.tree.Get(&r.probe); ok {
		d.refs++
		return d, false
	}

	d := build()
	d.key = key
	d.refs = 1
	r.tree.ReplaceOrInsert(d)
	return d, true
}

// release drops one reference and detaches d from the registry when it was
// the last one. It reports whether the caller must destroy d.
func (r *registry) release(d *FileDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.refs--
	if d.refs > 0 {
		return false
	}
	r.removeLocked(d)
	return true
}

func (r *registry) removeLocked(d *FileDescriptor) {
	if cur, ok := r.tree.Get(d); ok && cur == d {
		r.tree.Delete(d)
	}
}

// drain detaches and returns every descriptor.
func (r *registry) drain() []*FileDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*FileDescriptor, 0, r.tree.Len())
	r.tree.Ascend(func(d *FileDescriptor) bool {
		all = append(all, d)
		return true
	})
	r.tree.Clear(false)
	return all
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}
