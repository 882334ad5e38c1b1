// Package vault grants bounded, reusable access to OS file descriptors and
// to memory-mapped byte ranges of large files.
//
// A Vault owns all caches:
//
//   - the descriptor registry, which canonicalizes open files by
//     (device, inode, access mode)
//   - the HandleCache, which bounds the number of live OS descriptors
//   - the MmapCache, which bounds the mapped address space
//   - the resource collector, which asks the caches to give back idle
//     resources when an allocation fails
//
// Usage:
//
//	v, err := vault.New(vault.Config{})
//	f, err := v.Open("/data/clip.mov", vault.ReadWrite)
//	f.SetChunksize(1<<20, 0)
//	err = f.MapSection(0, 4096, func(b []byte) error {
//	    copy(b, header)
//	    return nil
//	})
//	f.Close()
//	v.Close()
package vault

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/sysmap"
	"github.com/marmos91/dittovault/pkg/vault/resource"
)

// Vault is the context object owning the registry and the caches.
//
// Thread Safety: Safe for concurrent use. Locks are always taken in the
// order Mmapings, FileDescriptor, Collector, then HandleCache or MmapCache.
type Vault struct {
	cfg       Config
	metrics   Metrics
	collector *resource.Collector
	registry  *registry
	handles   *HandleCache
	mmaps     *MmapCache

	window atomic.Int64
	closed atomic.Bool

	// live Mmapings, scanned when in-use windows must shrink
	live sync.Map
}

type options struct {
	metrics       Metrics
	collectorOpts []resource.Option
}

// Option configures a Vault.
type Option func(*options)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithExitFunc replaces the process exit of the resource collector panic.
func WithExitFunc(exit func(code int)) Option {
	return func(o *options) {
		o.collectorOpts = append(o.collectorOpts, resource.WithExitFunc(exit))
	}
}

// New sets up the registry and the caches.
func New(cfg Config, opts ...Option) (*Vault, error) {
	cfg.ApplyDefaults()
	if cfg.AsLimit < int64(sysmap.PageSize()) {
		return nil, fmt.Errorf("vault: as_limit %d below page size", cfg.AsLimit)
	}

	o := options{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.collectorOpts = append(o.collectorOpts, resource.WithMetrics(o.metrics))

	collector := resource.New(o.collectorOpts...)
	v := &Vault{
		cfg:       cfg,
		metrics:   o.metrics,
		collector: collector,
		registry:  newRegistry(),
		handles:   newHandleCache(cfg.MaxHandles, collector, o.metrics),
		mmaps:     newMmapCache(cfg.AsLimit, collector, o.metrics),
	}
	v.window.Store(cfg.WindowSize)

	logger.Info("Vault initialized: max_handles=%d as_limit=%d window_size=%d",
		cfg.MaxHandles, cfg.AsLimit, cfg.WindowSize)
	return v, nil
}

// Config returns the effective configuration.
func (v *Vault) Config() Config {
	return v.cfg
}

// Collector returns the resource collector so other subsystems can register
// their own handlers.
func (v *Vault) Collector() *resource.Collector {
	return v.collector
}

// Handles returns the file handle cache.
func (v *Vault) Handles() *HandleCache {
	return v.handles
}

// Mmaps returns the mmap cache.
func (v *Vault) Mmaps() *MmapCache {
	return v.mmaps
}

// WindowSize returns the current default mapping window. It shrinks when
// windows of that size can no longer be mapped.
func (v *Vault) WindowSize() int64 {
	return v.window.Load()
}

// shrinkWindow lowers the default window from old to smaller.
func (v *Vault) shrinkWindow(old, smaller int64) {
	if smaller < int64(sysmap.PageSize()) {
		return
	}
	if v.window.CompareAndSwap(old, smaller) {
		logger.Warn("Vault: mmap window size reduced to %d bytes", smaller)
	}
}

// Stats is a snapshot of the vault state.
type Stats struct {
	Handles     HandleStats `json:"handles" yaml:"handles"`
	Mmaps       MmapStats   `json:"mmaps" yaml:"mmaps"`
	Descriptors int         `json:"descriptors" yaml:"descriptors"`
	WindowSize  int64       `json:"window_size" yaml:"window_size"`
}

// Stats returns a snapshot of all caches.
func (v *Vault) Stats() Stats {
	return Stats{
		Handles:     v.handles.Stats(),
		Mmaps:       v.mmaps.Stats(),
		Descriptors: v.registry.len(),
		WindowSize:  v.WindowSize(),
	}
}

// Trim closes idle handles and unmaps idle windows unused for longer than
// maxIdle. It returns how many of each were released.
func (v *Vault) Trim(maxIdle time.Duration) (handles, windows int) {
	windows = v.mmaps.Trim(maxIdle)
	handles = v.handles.Trim(maxIdle)
	if handles > 0 || windows > 0 {
		logger.Debug("Vault trimmed %d idle handles and %d idle windows", handles, windows)
	}
	return handles, windows
}

// Close tears the vault down. Every open file is destroyed as if closed.
// Handles or mappings still checked out are a caller bug and panic.
func (v *Vault) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}

	if n := v.handles.Stats().CheckedOut; n > 0 {
		panic(fmt.Sprintf("vault: close with %d file handles checked out", n))
	}
	if n := v.mmaps.Stats().InUse; n > 0 {
		panic(fmt.Sprintf("vault: close with %d mappings in use", n))
	}

	var errs error
	for _, d := range v.registry.drain() {
		errs = multierr.Append(errs, v.destroyDescriptor(d))
	}

	v.mmaps.Close()
	v.handles.Close()
	v.collector.Destroy()

	logger.Info("Vault closed")
	return errs
}

// destroyDescriptor unmaps the windows of d, truncates a writable file to
// its logical size and gives the handle back.
func (v *Vault) destroyDescriptor(d *FileDescriptor) error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	d.destroyed = true
	ms := d.mmapings
	d.mu.Unlock()

	if ms != nil {
		ms.destroy()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.Writable() && d.size != d.realSize {
		path := d.path()
		err = v.withHandleLocked(d, func(fd int) error {
			// only the padding the vault added is cut off; bytes written
			// through the raw handle past it are adopted
			if err := v.statSizeLocked(d, fd); err != nil {
				return err
			}
			if d.size == d.realSize {
				return nil
			}
			return sysmap.Truncate(fd, d.realSize)
		})
		if err != nil {
			err = newError("ftruncate", path, err)
		} else {
			d.size = d.realSize
		}
	}
	v.handles.Drop(d.handle, d)
	d.handle = nil
	return err
}

// acquireHandleLocked checks out an opened handle for d.
// Caller holds d.mu.
func (v *Vault) acquireHandleLocked(d *FileDescriptor) (*FileHandle, error) {
	if d.handle == nil || !v.handles.Checkout(d.handle, d) {
		d.handle = v.handles.Acquire(d)
	}
	h := d.handle
	if h.fd >= 0 {
		return h, nil
	}

	fd, err := v.openLocked(d)
	if err != nil {
		v.handles.Checkin(h)
		return nil, err
	}
	h.fd = fd
	return h, nil
}

// withHandleLocked runs fn with an opened descriptor of d.
// Caller holds d.mu.
func (v *Vault) withHandleLocked(d *FileDescriptor, fn func(fd int) error) error {
	h, err := v.acquireHandleLocked(d)
	if err != nil {
		return err
	}
	defer v.handles.Checkin(h)
	return fn(h.fd)
}

// openLocked performs the deferred open of d's handle. It fails with
// ErrFileChanged when the path resolves to a different inode by now.
func (v *Vault) openLocked(d *FileDescriptor) (int, error) {
	path := d.path()
	try := resource.TryNone

	for {
		fd, err := sysmap.Open(path, d.openFlags(), 0)
		if err == nil {
			return v.verifyLocked(d, path, fd)
		}
		if !sysmap.IsTooManyFiles(err) {
			return -1, newError("open", path, err)
		}
		if !v.collector.RunUntil(resource.FileHandle, &try, resource.TryAll, nil) {
			return -1, newError("open", path, ErrNoHandle)
		}
	}
}

func (v *Vault) verifyLocked(d *FileDescriptor, path string, fd int) (int, error) {
	fi, err := sysmap.Fstat(fd)
	if err != nil {
		_ = sysmap.Close(fd)
		return -1, newError("fstat", path, err)
	}
	if !fi.SameFile(sysmap.FileInfo{Dev: d.key.dev, Ino: d.key.ino}) {
		_ = sysmap.Close(fd)
		return -1, newError("open", path, ErrFileChanged)
	}
	return fd, nil
}

// refreshSizeLocked re-reads the physical size of d.
// Caller holds d.mu.
func (v *Vault) refreshSizeLocked(d *FileDescriptor) error {
	return v.withHandleLocked(d, func(fd int) error {
		return v.statSizeLocked(d, fd)
	})
}

// statSizeLocked updates the cached sizes of d from fstat on fd. Growth
// past the known physical size happened outside the vault and becomes
// logical size; chunk padding below it stays padding.
// Caller holds d.mu.
func (v *Vault) statSizeLocked(d *FileDescriptor, fd int) error {
	fi, err := sysmap.Fstat(fd)
	if err != nil {
		return err
	}
	if !d.Writable() || fi.Size > d.size {
		d.realSize = fi.Size
	}
	d.size = fi.Size
	if d.realSize > d.size {
		d.realSize = d.size
	}
	return nil
}

// growLocked extends the file of d to at least end. The file is never
// shortened: its current size is read first.
// Caller holds d.mu.
func (v *Vault) growLocked(d *FileDescriptor, end int64) error {
	return v.withHandleLocked(d, func(fd int) error {
		if err := v.statSizeLocked(d, fd); err != nil {
			return err
		}
		if end <= d.size {
			return nil
		}
		if err := sysmap.Truncate(fd, end); err != nil {
			return err
		}
		d.size = end
		return nil
	})
}

// MmapExact maps exactly [start, start+size) of file outside of the window
// cache. start must be page aligned. The caller owns the returned window
// and must Delete it.
func (v *Vault) MmapExact(file *File, start, size int64) (*Mmap, error) {
	page := int64(sysmap.PageSize())
	if start < 0 || size <= 0 || start%page != 0 {
		return nil, newError("mmap", file.name, ErrInvalidRange)
	}
	if err := file.check(); err != nil {
		return nil, err
	}

	d := file.desc
	end := start + size

	d.mu.Lock()
	if end > d.size {
		if d.Writable() {
			if err := v.growLocked(d, end); err != nil {
				d.mu.Unlock()
				return nil, newError("ftruncate", file.name, err)
			}
		} else {
			if err := v.refreshSizeLocked(d); err != nil {
				d.mu.Unlock()
				return nil, newError("fstat", file.name, err)
			}
			if end > d.size {
				d.mu.Unlock()
				return nil, newError("mmap", file.name, ErrMmapNotWritable)
			}
		}
	}
	if d.Writable() && end > d.realSize {
		d.realSize = end
	}
	h, err := v.acquireHandleLocked(d)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer func() {
		d.mu.Lock()
		v.handles.Checkin(h)
		d.mu.Unlock()
	}()

	region, err := v.mapWindow(nil, h.fd, start, size, size, page, d.Writable())
	if err != nil {
		return nil, &Error{Op: "mmap", Path: file.name, Err: err}
	}
	m := newMmap(nil, v.mmaps, region, page)
	m.refcnt = 1
	v.mmaps.Announce(m, int64(region.Len()))
	return m, nil
}
