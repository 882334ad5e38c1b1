package vault

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/sysmap"
)

// Flags select the access mode of an opened file.
type Flags int

const (
	// ReadOnly opens an existing file for reading
	ReadOnly Flags = unix.O_RDONLY
	// ReadWrite opens an existing file for reading and writing
	ReadWrite Flags = unix.O_RDWR
	// Create opens for reading and writing, creating the file and its
	// parent directories when missing
	Create Flags = unix.O_RDWR | unix.O_CREAT
	// Recreate is Create, truncating an existing file on first open
	Recreate Flags = unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC
)

const (
	lockNone = iota
	lockRead
	lockWrite
)

// File is one open of a name. Several Files may share a FileDescriptor.
type File struct {
	vault    *Vault
	name     string
	desc     *FileDescriptor
	closed   atomic.Bool
	lockMode int
}

// Open opens name. With Create or Recreate the file is created, together
// with missing parent directories, when it does not exist.
func (v *Vault) Open(name string, flags Flags) (*File, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}

	fi, err := sysmap.Stat(name)
	if err != nil {
		if !errors.Is(err, unix.ENOENT) || int(flags)&unix.O_CREAT == 0 {
			return nil, newError("open", name, err)
		}
		if fi, err = createFile(name); err != nil {
			return nil, err
		}
	}

	key := descriptorKey{
		dev:     fi.Dev,
		ino:     fi.Ino,
		accmode: int(flags) &^ openModeMask,
	}
	d, created := v.registry.ensure(key, func() *FileDescriptor {
		return newFileDescriptor(key, fi.Size)
	})

	f := &File{vault: v, name: name, desc: d}

	d.mu.Lock()
	d.names[name]++
	if created && int(flags)&unix.O_TRUNC != 0 && fi.Size > 0 {
		if err := unix.Truncate(name, 0); err != nil {
			d.mu.Unlock()
			_ = f.Close()
			return nil, newError("truncate", name, err)
		}
		d.size = 0
		d.realSize = 0
	}
	d.mu.Unlock()

	logger.Debug("Vault: opened %s (dev=%d ino=%d mode=%#o shared=%t)",
		name, key.dev, key.ino, key.accmode, !created)
	return f, nil
}

func createFile(name string) (sysmap.FileInfo, error) {
	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return sysmap.FileInfo{}, newError("mkdir", dir, err)
		}
	}

	// no O_EXCL: losing a creation race to another opener is fine
	fd, err := sysmap.Open(name, unix.O_RDWR|unix.O_CREAT, 0o666)
	if err != nil {
		return sysmap.FileInfo{}, newError("create", name, err)
	}
	_ = sysmap.Close(fd)

	fi, err := sysmap.Stat(name)
	if err != nil {
		return sysmap.FileInfo{}, newError("stat", name, err)
	}
	return fi, nil
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Descriptor returns the shared descriptor.
func (f *File) Descriptor() *FileDescriptor {
	return f.desc
}

func (f *File) check() error {
	if f.closed.Load() || f.vault.closed.Load() {
		return newError("access", f.name, ErrClosed)
	}
	return nil
}

// Close releases the file. The descriptor is destroyed with its last File.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs error
	if f.lockMode != lockNone {
		errs = f.unlock()
	}

	d := f.desc
	if f.vault.registry.release(d) {
		// the name is still needed to reopen the handle for the final truncate
		errs = multierr.Append(errs, f.vault.destroyDescriptor(d))
	}

	d.mu.Lock()
	d.names[f.name]--
	if d.names[f.name] <= 0 {
		delete(d.names, f.name)
	}
	d.mu.Unlock()

	return errs
}

// Delete closes the file and unlinks its name.
func (f *File) Delete() error {
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Remove(f.name); err != nil {
		return newError("unlink", f.name, err)
	}
	return nil
}

// HandleAcquire checks out the OS descriptor of the file. Every successful
// call must be paired with HandleRelease.
func (f *File) HandleAcquire() (int, error) {
	if err := f.check(); err != nil {
		return -1, err
	}

	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()

	h, err := f.vault.acquireHandleLocked(d)
	if err != nil {
		return -1, err
	}
	return h.fd, nil
}

// HandleRelease returns the descriptor checked out by HandleAcquire.
func (f *File) HandleRelease() {
	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		panic("vault: handle release without acquire")
	}
	f.vault.handles.Checkin(d.handle)
}

// WithHandle runs fn with the OS descriptor checked out.
func (f *File) WithHandle(fn func(fd int) error) error {
	fd, err := f.HandleAcquire()
	if err != nil {
		return err
	}
	defer f.HandleRelease()
	return fn(fd)
}

// SetChunksize sets the mapping granularity of the file. It can be set
// once; later calls leave it unchanged. The effective chunk size is
// returned. chunksize must be a power of two not smaller than the page
// size and bias a multiple of the page size.
func (f *File) SetChunksize(chunksize, bias int64) (int64, error) {
	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.chunksize != 0 {
		return d.chunksize, nil
	}

	page := int64(sysmap.PageSize())
	if chunksize < page || chunksize&(chunksize-1) != 0 || bias < 0 || bias%page != 0 {
		return 0, newError("chunksize", f.name, ErrInvalidChunksize)
	}
	d.chunksize = chunksize
	d.bias = bias
	return chunksize, nil
}

// Chunksize returns the mapping granularity, 0 if unset.
func (f *File) Chunksize() int64 {
	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunksize
}

// Bias returns the offset of the chunk grid.
func (f *File) Bias() int64 {
	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bias
}

// Mmapings returns the window set of the file, creating it on first use.
func (f *File) Mmapings() (*Mmapings, error) {
	if err := f.check(); err != nil {
		return nil, err
	}

	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.chunksize == 0 {
		return nil, newError("mmap", f.name, ErrNoChunksize)
	}
	if d.mmapings == nil {
		d.mmapings = newMmapings(f.vault, d)
		f.vault.live.Store(d.mmapings, struct{}{})
	}
	return d.mmapings, nil
}

// MmapAcquire maps [start, start+size). The mapping must be released.
func (f *File) MmapAcquire(start, size int64) (*Mapping, error) {
	ms, err := f.Mmapings()
	if err != nil {
		return nil, err
	}
	return ms.Acquire(f, start, size)
}

// MapSection maps [start, start+size), runs fn on the bytes and releases
// the mapping again.
func (f *File) MapSection(start, size int64, fn func(b []byte) error) error {
	mp, err := f.MmapAcquire(start, size)
	if err != nil {
		return err
	}
	defer mp.Release()
	return fn(mp.Bytes())
}

// Size returns the logical size of the file.
func (f *File) Size() int64 {
	d := f.desc
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.realSize
}

// Truncate sets the logical size to n. Bytes past n read as zero
// afterwards, also through windows still in use.
func (f *File) Truncate(n int64) error {
	if err := f.check(); err != nil {
		return err
	}
	if n < 0 {
		return newError("truncate", f.name, ErrInvalidRange)
	}

	d := f.desc
	if !d.Writable() {
		return newError("truncate", f.name, unix.EBADF)
	}

	physEnd := n
	d.mu.Lock()
	ms := d.mmapings
	d.mu.Unlock()
	if ms != nil {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		physEnd = max(n, ms.truncateLocked(n))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := f.vault.withHandleLocked(d, func(fd int) error {
		if err := sysmap.Truncate(fd, n); err != nil {
			return err
		}
		if physEnd > n {
			return sysmap.Truncate(fd, physEnd)
		}
		return nil
	})
	if err != nil {
		return newError("ftruncate", f.name, err)
	}
	d.size = physEnd
	d.realSize = n
	return nil
}

// Sync flushes mapped windows and the file to stable storage.
func (f *File) Sync() error {
	if err := f.check(); err != nil {
		return err
	}

	d := f.desc
	d.mu.Lock()
	ms := d.mmapings
	d.mu.Unlock()
	if ms != nil {
		ms.mu.Lock()
		err := ms.syncLocked()
		ms.mu.Unlock()
		if err != nil {
			return newError("msync", f.name, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := f.vault.withHandleLocked(d, sysmap.Fsync); err != nil {
		return newError("fsync", f.name, err)
	}
	return nil
}

// RLock takes a shared whole-file lock, both within the process and as an
// advisory fcntl lock towards other processes.
func (f *File) RLock() error {
	return f.lock(false)
}

// Lock takes an exclusive whole-file lock.
func (f *File) Lock() error {
	return f.lock(true)
}

func (f *File) lock(exclusive bool) error {
	if err := f.check(); err != nil {
		return err
	}
	if f.lockMode != lockNone {
		return newError("lock", f.name, unix.EDEADLK)
	}

	d := f.desc
	if exclusive {
		d.rw.Lock()
	} else {
		d.rw.RLock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lockCnt == 0 {
		// the handle stays checked out until the last unlock; closing any
		// descriptor of the file would drop the fcntl lock
		h, err := f.vault.acquireHandleLocked(d)
		if err == nil {
			if err = sysmap.LockFile(h.fd, exclusive); err != nil {
				f.vault.handles.Checkin(h)
			}
		}
		if err != nil {
			if exclusive {
				d.rw.Unlock()
			} else {
				d.rw.RUnlock()
			}
			return newError("lock", f.name, err)
		}
	}

	d.lockCnt++
	f.lockMode = lockRead
	if exclusive {
		f.lockMode = lockWrite
	}
	return nil
}

// Unlock releases the lock taken by RLock or Lock.
func (f *File) Unlock() error {
	if f.lockMode == lockNone {
		return newError("unlock", f.name, unix.ENOLCK)
	}
	return f.unlock()
}

func (f *File) unlock() error {
	d := f.desc
	mode := f.lockMode

	d.mu.Lock()
	var err error
	d.lockCnt--
	if d.lockCnt == 0 {
		if err = sysmap.UnlockFile(d.handle.fd); err != nil {
			err = newError("unlock", f.name, err)
		}
		f.vault.handles.Checkin(d.handle)
	}
	f.lockMode = lockNone
	d.mu.Unlock()

	if mode == lockWrite {
		d.rw.Unlock()
	} else {
		d.rw.RUnlock()
	}
	return err
}
