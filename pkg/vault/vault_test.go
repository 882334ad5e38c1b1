package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/marmos91/dittovault/internal/sysmap"
)

var page = int64(sysmap.PageSize())

func newTestVault(t *testing.T, cfg Config) *Vault {
	t.Helper()
	v, err := New(cfg, WithExitFunc(func(int) {
		t.Error("unexpected resource collector panic")
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func openChunked(t *testing.T, v *Vault, name string, flags Flags) *File {
	t.Helper()
	f, err := v.Open(name, flags)
	require.NoError(t, err)
	_, err = f.SetChunksize(page, 0)
	require.NoError(t, err)
	return f
}

func fileSize(t *testing.T, name string) int64 {
	t.Helper()
	fi, err := os.Stat(name)
	require.NoError(t, err)
	return fi.Size()
}

// ============================================================================
// Descriptors
// ============================================================================

func TestOpen_DescriptorIdentity(t *testing.T) {
	v := newTestVault(t, Config{})
	dir := t.TempDir()
	name := filepath.Join(dir, "media.dat")
	link := filepath.Join(dir, "link.dat")
	require.NoError(t, os.WriteFile(name, []byte("content"), 0o644))
	require.NoError(t, os.Link(name, link))

	rw1, err := v.Open(name, ReadWrite)
	require.NoError(t, err)
	defer rw1.Close()
	rw2, err := v.Open(name, Create)
	require.NoError(t, err)
	defer rw2.Close()
	viaLink, err := v.Open(link, ReadWrite)
	require.NoError(t, err)
	defer viaLink.Close()
	ro, err := v.Open(name, ReadOnly)
	require.NoError(t, err)
	defer ro.Close()

	assert.Same(t, rw1.Descriptor(), rw2.Descriptor(), "create flags are masked out")
	assert.Same(t, rw1.Descriptor(), viaLink.Descriptor(), "hard links share the descriptor")
	assert.NotSame(t, rw1.Descriptor(), ro.Descriptor(), "access modes differ")
	assert.Equal(t, 2, v.Stats().Descriptors)
}

func TestOpen_MissingFile(t *testing.T) {
	v := newTestVault(t, Config{})

	_, err := v.Open(filepath.Join(t.TempDir(), "missing"), ReadOnly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.ENOENT))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "open", verr.Op)
}

func TestOpen_CreateMakesParents(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "a", "b", "clip.mov")

	f, err := v.Open(name, Create)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, int64(0), fileSize(t, name))
}

func TestOpen_RecreateTruncatesOnFirstOpen(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(name, []byte("old content"), 0o644))

	f, err := v.Open(name, Recreate)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(0), f.Size())
	assert.Equal(t, int64(0), fileSize(t, name))
}

func TestClose_DestroysDescriptor(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")

	f1, err := v.Open(name, Create)
	require.NoError(t, err)
	f2, err := v.Open(name, Create)
	require.NoError(t, err)

	require.NoError(t, f1.Close())
	assert.Equal(t, 1, v.Stats().Descriptors)
	require.NoError(t, f2.Close())
	assert.Equal(t, 0, v.Stats().Descriptors)

	// double close is harmless
	require.NoError(t, f2.Close())
	_, err = f2.HandleAcquire()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDelete_RemovesFile(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")

	f, err := v.Open(name, Create)
	require.NoError(t, err)
	require.NoError(t, f.Delete())

	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}

// ============================================================================
// Handles
// ============================================================================

func TestHandle_QuotaPlusOneOverallocates(t *testing.T) {
	v := newTestVault(t, Config{MaxHandles: 4})
	dir := t.TempDir()

	var files []*File
	for i := 0; i < 5; i++ {
		f, err := v.Open(filepath.Join(dir, fmt.Sprintf("f%d", i)), Create)
		require.NoError(t, err)
		fd, err := f.HandleAcquire()
		require.NoError(t, err, "acquisition %d", i)
		assert.GreaterOrEqual(t, fd, 0)
		files = append(files, f)
	}

	stats := v.Stats().Handles
	assert.Equal(t, 5, stats.Allocated)
	assert.Equal(t, 5, stats.CheckedOut)
	assert.Equal(t, -1, stats.Available)

	for _, f := range files {
		f.HandleRelease()
		require.NoError(t, f.Close())
	}
	assert.Equal(t, 0, v.Stats().Handles.CheckedOut)
}

func TestHandle_ReacquireAfterTakeover(t *testing.T) {
	v := newTestVault(t, Config{MaxHandles: 4})
	dir := t.TempDir()

	var files []*File
	for i := 0; i < 6; i++ {
		f, err := v.Open(filepath.Join(dir, fmt.Sprintf("f%d", i)), Create)
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, f.WithHandle(func(int) error { return nil }))
		files = append(files, f)
	}
	assert.Equal(t, 4, v.Stats().Handles.Allocated, "idle handles are recycled at quota")

	// The first file's handle was taken over; it gets a fresh one
	err := files[0].WithHandle(func(fd int) error {
		fi, err := sysmap.Fstat(fd)
		if err != nil {
			return err
		}
		assert.Equal(t, files[0].Descriptor().key.ino, fi.Ino)
		return nil
	})
	require.NoError(t, err)
}

func TestHandle_CheckedOutPairsBalance(t *testing.T) {
	v := newTestVault(t, Config{MaxHandles: 8})
	f, err := v.Open(filepath.Join(t.TempDir(), "clip"), Create)
	require.NoError(t, err)
	defer f.Close()

	before := v.Stats().Handles.CheckedOut
	for i := 0; i < 3; i++ {
		_, err := f.HandleAcquire()
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, v.Stats().Handles.CheckedOut)
	for i := 0; i < 3; i++ {
		f.HandleRelease()
	}
	assert.Equal(t, before, v.Stats().Handles.CheckedOut)
}

func TestHandle_FileChanged(t *testing.T) {
	v := newTestVault(t, Config{})
	dir := t.TempDir()
	name := filepath.Join(dir, "clip")
	other := filepath.Join(dir, "other")

	f, err := v.Open(name, Create)
	require.NoError(t, err)
	defer f.Close()

	// replace the inode behind the name before the lazy open
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.Rename(other, name))

	_, err = f.HandleAcquire()
	assert.ErrorIs(t, err, ErrFileChanged)
	assert.Equal(t, 0, v.Stats().Handles.CheckedOut)
}

// ============================================================================
// Mappings
// ============================================================================

func TestMmap_ReacquireReusesWindowAndTruncatesOnClose(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")
	f := openChunked(t, v, name, Create)

	mp, err := f.MmapAcquire(0, 100)
	require.NoError(t, err)
	copy(mp.Bytes(), "frame header")
	addr := mp.Addr()
	assert.Len(t, mp.Bytes(), 100)
	assert.Equal(t, page, fileSize(t, name), "writable files grow to the chunk boundary")
	assert.Equal(t, int64(100), f.Size())
	mp.Release()
	mp.Release()

	stats := v.Stats().Mmaps
	assert.Equal(t, 1, stats.Windows)
	assert.Equal(t, 1, stats.Idle)

	mp, err = f.MmapAcquire(0, 100)
	require.NoError(t, err)
	assert.Equal(t, addr, mp.Addr(), "cached window is reused")
	assert.Equal(t, 1, v.Stats().Mmaps.Windows)
	mp.Release()

	require.NoError(t, f.Close())
	assert.Equal(t, int64(100), fileSize(t, name))
	assert.Equal(t, 0, v.Stats().Mmaps.Windows)

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "frame header", string(data[:12]))

	// read-only access is bounded by the real size
	ro := openChunked(t, v, name, ReadOnly)
	defer ro.Close()
	mp, err = ro.MmapAcquire(0, 100)
	require.NoError(t, err)
	assert.Equal(t, "frame header", string(mp.Bytes()[:12]))
	mp.Release()

	_, err = ro.MmapAcquire(0, 101)
	assert.ErrorIs(t, err, ErrMmapNotWritable)
	assert.Equal(t, int64(100), fileSize(t, name))
}

func TestMmap_KeepsBytesWrittenThroughHandle(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")
	f := openChunked(t, v, name, Create)

	raw := make([]byte, 3*page)
	for i := range raw {
		raw[i] = byte(i % 251)
	}
	fd, err := f.HandleAcquire()
	require.NoError(t, err)
	n, err := unix.Pwrite(fd, raw, 0)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)
	f.HandleRelease()

	mp, err := f.MmapAcquire(0, 100)
	require.NoError(t, err)
	assert.Equal(t, raw[:100], mp.Bytes())
	mp.Release()
	assert.Equal(t, 3*page, fileSize(t, name), "mapping never shortens the file")
	assert.Equal(t, 3*page, f.Size())

	require.NoError(t, f.Close())
	assert.Equal(t, 3*page, fileSize(t, name))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestClose_KeepsGrowthPastChunkPadding(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")
	f := openChunked(t, v, name, Create)

	// the window pads the file to one chunk
	mp, err := f.MmapAcquire(0, 100)
	require.NoError(t, err)
	copy(mp.Bytes(), "frame header")
	mp.Release()
	require.Equal(t, page, fileSize(t, name))

	fd, err := f.HandleAcquire()
	require.NoError(t, err)
	_, err = unix.Pwrite(fd, []byte("trailer"), 2*page)
	require.NoError(t, err)
	f.HandleRelease()

	require.NoError(t, f.Close())
	assert.Equal(t, 2*page+7, fileSize(t, name))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "frame header", string(data[:12]))
	assert.Equal(t, "trailer", string(data[2*page:]))
}

func TestMmapExact_NeverShortensFile(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip")
	f := openChunked(t, v, name, Create)

	fd, err := f.HandleAcquire()
	require.NoError(t, err)
	_, err = unix.Pwrite(fd, make([]byte, 4*page), 0)
	require.NoError(t, err)
	f.HandleRelease()

	m, err := v.MmapExact(f, 0, 100)
	require.NoError(t, err)
	m.Delete()
	assert.Equal(t, 4*page, fileSize(t, name))

	require.NoError(t, f.Close())
	assert.Equal(t, 4*page, fileSize(t, name))
}

func TestMmap_CoveredRangesShareWindow(t *testing.T) {
	v := newTestVault(t, Config{WindowSize: 4 * page})
	name := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(name, make([]byte, 4*page), 0o644))
	f := openChunked(t, v, name, ReadWrite)
	defer f.Close()

	a, err := f.MmapAcquire(0, 100)
	require.NoError(t, err)
	assert.Equal(t, 4*page, a.Window().Size(), "writable windows grow to the window size")

	b, err := f.MmapAcquire(2*page+10, 100)
	require.NoError(t, err)
	assert.Same(t, a.Window(), b.Window())
	assert.Equal(t, 2, a.Window().Refcnt())
	assert.Equal(t, a.Addr()+uintptr(2*page+10), b.Addr())

	a.Release()
	assert.Equal(t, 0, v.Stats().Mmaps.Idle)
	b.Release()
	assert.Equal(t, 1, v.Stats().Mmaps.Idle)
}

func TestMmap_ReadOnlyWindowIsExact(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(name, make([]byte, 8*page), 0o644))
	f, err := v.Open(name, ReadOnly)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.SetChunksize(2*page, 0)
	require.NoError(t, err)

	mp, err := f.MmapAcquire(2*page+10, 20)
	require.NoError(t, err)
	defer mp.Release()

	assert.Equal(t, 2*page, mp.Window().Start())
	assert.Equal(t, page, mp.Window().Size())
	assert.Equal(t, 8*page, fileSize(t, name))
}

func TestMmap_ChunksizeRules(t *testing.T) {
	v := newTestVault(t, Config{})
	f, err := v.Open(filepath.Join(t.TempDir(), "clip"), Create)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.MmapAcquire(0, 10)
	assert.ErrorIs(t, err, ErrNoChunksize)

	_, err = f.SetChunksize(page+1, 0)
	assert.ErrorIs(t, err, ErrInvalidChunksize)
	_, err = f.SetChunksize(page, 7)
	assert.ErrorIs(t, err, ErrInvalidChunksize)

	cs, err := f.SetChunksize(2*page, page)
	require.NoError(t, err)
	assert.Equal(t, 2*page, cs)

	cs, err = f.SetChunksize(page, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*page, cs, "the first chunk size sticks")
	assert.Equal(t, page, f.Bias())

	_, err = f.MmapAcquire(-1, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestMmapings_ChunkGridWithBias(t *testing.T) {
	ms := &Mmapings{chunksize: 4 * page, bias: page}

	assert.Equal(t, int64(0), ms.chunkFloor(10))
	assert.Equal(t, page, ms.chunkCeil(10))
	assert.Equal(t, page, ms.chunkFloor(page))
	assert.Equal(t, page, ms.chunkFloor(5*page-1))
	assert.Equal(t, 5*page, ms.chunkCeil(page+1))
	assert.Equal(t, 5*page, ms.chunkFloor(5*page))
	assert.Equal(t, int64(0), ms.chunkCeil(0))
}

func TestMmap_IdleWindowsEvictedAtLimit(t *testing.T) {
	v := newTestVault(t, Config{AsLimit: 2 * page, WindowSize: page})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	first, err := f.MmapAcquire(0, 10)
	require.NoError(t, err)
	firstWindow := first.Window()
	first.Release()

	second, err := f.MmapAcquire(page, 10)
	require.NoError(t, err)
	second.Release()
	assert.Equal(t, 2*page, v.Stats().Mmaps.Total)

	third, err := f.MmapAcquire(2*page, 10)
	require.NoError(t, err)
	defer third.Release()

	stats := v.Stats().Mmaps
	assert.Equal(t, 2*page, stats.Total)
	assert.Equal(t, 2, stats.Windows)
	assert.True(t, firstWindow.dead.Load(), "oldest idle window was evicted")
}

func TestMmap_ReduceWindowShrinksDefault(t *testing.T) {
	v := newTestVault(t, Config{AsLimit: 2 * page, WindowSize: 4 * page})
	name := filepath.Join(t.TempDir(), "clip")
	require.NoError(t, os.WriteFile(name, make([]byte, 4*page), 0o644))
	f := openChunked(t, v, name, ReadWrite)
	defer f.Close()

	mp, err := f.MmapAcquire(0, 10)
	require.NoError(t, err)
	defer mp.Release()

	assert.Equal(t, 2*page, mp.Window().Size())
	assert.Equal(t, 2*page, v.WindowSize())
}

func TestMmap_ReduceInUseFreesUnreferencedTail(t *testing.T) {
	v := newTestVault(t, Config{AsLimit: 4 * page, WindowSize: 4 * page})
	dir := t.TempDir()
	big := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(big, make([]byte, 4*page), 0o644))

	a := openChunked(t, v, big, ReadWrite)
	defer a.Close()
	held, err := a.MmapAcquire(0, 10)
	require.NoError(t, err)
	defer held.Release()
	require.Equal(t, 4*page, held.Window().Size())

	b := openChunked(t, v, filepath.Join(dir, "small"), Create)
	defer b.Close()
	mp, err := b.MmapAcquire(0, 10)
	require.NoError(t, err)
	defer mp.Release()

	assert.Equal(t, page, held.Window().Size(), "unreferenced tail was unmapped")
	copy(held.Bytes(), "still mapped")
	assert.Equal(t, "still mapped", string(held.Bytes()[:12]))
	assert.Equal(t, 2*page, v.Stats().Mmaps.Total)
}

func TestMmap_GiveUp(t *testing.T) {
	v := newTestVault(t, Config{AsLimit: page, WindowSize: page})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	held, err := f.MmapAcquire(0, 10)
	require.NoError(t, err)
	defer held.Release()

	_, err = f.MmapAcquire(page, 10)
	assert.ErrorIs(t, err, ErrMmapSpace)
}

func TestMapSection(t *testing.T) {
	v := newTestVault(t, Config{})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	err := f.MapSection(page-3, 6, func(b []byte) error {
		copy(b, "across")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Stats().Mmaps.InUse)

	boom := errors.New("boom")
	err = f.MapSection(page-3, 6, func(b []byte) error {
		assert.Equal(t, "across", string(b))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, v.Stats().Mmaps.InUse)
}

func TestMmapExact(t *testing.T) {
	v := newTestVault(t, Config{})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	_, err := v.MmapExact(f, 10, 100)
	assert.ErrorIs(t, err, ErrInvalidRange)

	m, err := v.MmapExact(f, page, 100)
	require.NoError(t, err)
	assert.Len(t, m.Bytes(), 100)
	assert.Equal(t, page+100, f.Size())
	assert.Equal(t, 1, v.Stats().Mmaps.InUse)

	m.Delete()
	assert.Equal(t, 0, v.Stats().Mmaps.Windows)
	assert.Equal(t, int64(0), v.Stats().Mmaps.Total)
}

func TestMmap_ConcurrentSections(t *testing.T) {
	v := newTestVault(t, Config{WindowSize: 4 * page})
	name := filepath.Join(t.TempDir(), "clip")
	f := openChunked(t, v, name, Create)

	const workers = 8
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			for round := 0; round < 20; round++ {
				off := int64(i)*page + int64(round)
				err := f.MapSection(off, 1, func(b []byte) error {
					b[0] = byte('a' + i)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, v.Stats().Mmaps.InUse)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, data, int((workers-1)*page+20))
	for i := 0; i < workers; i++ {
		assert.Equal(t, byte('a'+i), data[int64(i)*page+5])
	}
}

// ============================================================================
// File operations
// ============================================================================

func TestTruncate(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip")
	f := openChunked(t, v, name, Create)

	require.NoError(t, f.MapSection(0, 200, func(b []byte) error {
		for i := range b {
			b[i] = 'x'
		}
		return nil
	}))
	require.NoError(t, f.Truncate(10))
	assert.Equal(t, int64(10), f.Size())

	require.NoError(t, f.MapSection(0, 20, func(b []byte) error {
		assert.Equal(t, byte(0), b[15], "bytes past the truncation read as zero")
		return nil
	}))
	assert.Equal(t, int64(20), f.Size())
	require.NoError(t, f.Close())
	assert.Equal(t, int64(20), fileSize(t, name))
}

func TestSync(t *testing.T) {
	v := newTestVault(t, Config{})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	mp, err := f.MmapAcquire(0, 10)
	require.NoError(t, err)
	copy(mp.Bytes(), "sync")
	require.NoError(t, f.Sync())
	mp.Release()
}

func TestLocks(t *testing.T) {
	v := newTestVault(t, Config{})
	name := filepath.Join(t.TempDir(), "clip")

	a, err := v.Open(name, Create)
	require.NoError(t, err)
	defer a.Close()
	b, err := v.Open(name, Create)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.RLock())
	require.NoError(t, b.RLock())
	assert.Equal(t, 1, v.Stats().Handles.CheckedOut, "one handle pins the fcntl lock")
	assert.Error(t, a.RLock(), "locks do not nest per file")
	require.NoError(t, a.Unlock())
	require.NoError(t, b.Unlock())
	assert.Equal(t, 0, v.Stats().Handles.CheckedOut)

	require.NoError(t, a.Lock())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, b.Lock())
		assert.NoError(t, b.Unlock())
	}()

	select {
	case <-done:
		t.Fatal("exclusive lock was not exclusive")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, a.Unlock())
	<-done

	assert.ErrorIs(t, a.Unlock(), unix.ENOLCK)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestClose_Clean(t *testing.T) {
	v, err := New(Config{})
	require.NoError(t, err)

	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	mp, err := f.MmapAcquire(0, 10)
	require.NoError(t, err)
	mp.Release()

	assert.NotPanics(t, func() { require.NoError(t, v.Close()) })
	assert.NoError(t, v.Close())

	_, err = v.Open(filepath.Join(t.TempDir(), "other"), Create)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, f.Close())
}

func TestClose_PanicsWithHandleCheckedOut(t *testing.T) {
	v, err := New(Config{})
	require.NoError(t, err)

	f, err := v.Open(filepath.Join(t.TempDir(), "clip"), Create)
	require.NoError(t, err)
	_, err = f.HandleAcquire()
	require.NoError(t, err)

	assert.Panics(t, func() { _ = v.Close() })
}

func TestClose_PanicsWithMappingInUse(t *testing.T) {
	v, err := New(Config{})
	require.NoError(t, err)

	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	_, err = f.MmapAcquire(0, 10)
	require.NoError(t, err)

	assert.Panics(t, func() { _ = v.Close() })
}

func TestTrim(t *testing.T) {
	v := newTestVault(t, Config{})
	f := openChunked(t, v, filepath.Join(t.TempDir(), "clip"), Create)
	defer f.Close()

	require.NoError(t, f.MapSection(0, 10, func([]byte) error { return nil }))
	require.Equal(t, 1, v.Stats().Mmaps.Idle)
	require.Equal(t, 1, v.Stats().Handles.Idle)

	handles, windows := v.Trim(time.Hour)
	assert.Zero(t, handles)
	assert.Zero(t, windows)

	time.Sleep(5 * time.Millisecond)
	handles, windows = v.Trim(time.Millisecond)
	assert.Equal(t, 1, handles)
	assert.Equal(t, 1, windows)

	// the file keeps working after its handle and window were trimmed
	require.NoError(t, f.MapSection(0, 10, func([]byte) error { return nil }))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.GreaterOrEqual(t, cfg.MaxHandles, minHandles)
	assert.Positive(t, cfg.AsLimit)
	assert.Equal(t, DefaultWindowSize(), cfg.WindowSize)

	cfg = Config{MaxHandles: 1, WindowSize: 1}
	cfg.ApplyDefaults()
	assert.Equal(t, minHandles, cfg.MaxHandles)
	assert.Equal(t, page, cfg.WindowSize)
}
