package fs

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/content"
)

// ReadAt reads len(buf) bytes of id starting at offset.
//
// The bytes are copied out of mapped windows one chunk at a time; the
// context is checked between chunks.
func (s *FSContentStore) ReadAt(ctx context.Context, id content.ContentID, buf []byte, offset int64) (int, error) {
	if err := s.check(ctx, id); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	entry, err := s.acquire(id, false)
	if err != nil {
		return 0, err
	}
	defer s.release(entry)

	start := time.Now()
	n, err := s.readAt(ctx, entry, buf, offset)
	s.metrics.ObserveRead(int64(n), time.Since(start), ignoreEOF(err))
	return n, err
}

func (s *FSContentStore) readAt(ctx context.Context, entry *cacheEntry, buf []byte, offset int64) (int, error) {
	size := entry.file.Size()
	if len(buf) == 0 {
		return 0, nil
	}
	if offset >= size {
		return 0, io.EOF
	}

	want := int(min(int64(len(buf)), size-offset))
	done := 0
	for done < want {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		pos := offset + int64(done)
		// stay inside one chunk so every copy maps at most one window
		n := int(min(int64(want-done), s.chunkSize-pos%s.chunkSize))
		err := entry.file.MapSection(pos, int64(n), func(b []byte) error {
			copy(buf[done:done+n], b)
			return nil
		})
		if err != nil {
			return done, fmt.Errorf("failed to read content: %w", err)
		}
		done += n
	}

	if done < len(buf) {
		return done, io.EOF
	}
	return done, nil
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}

// contentReader is a seekable reader over one object. It holds its file
// open until closed.
type contentReader struct {
	*io.SectionReader
	once    sync.Once
	release func()
}

func (r *contentReader) Close() error {
	r.once.Do(r.release)
	return nil
}

// entryReaderAt adapts an open object to io.ReaderAt.
type entryReaderAt struct {
	ctx   context.Context
	store *FSContentStore
	entry *cacheEntry
}

func (r entryReaderAt) ReadAt(p []byte, off int64) (int, error) {
	start := time.Now()
	n, err := r.store.readAt(r.ctx, r.entry, p, off)
	r.store.metrics.ObserveRead(int64(n), time.Since(start), ignoreEOF(err))
	return n, err
}

func (s *FSContentStore) openReader(ctx context.Context, id content.ContentID) (*contentReader, error) {
	if err := s.check(ctx, id); err != nil {
		return nil, err
	}

	entry, err := s.acquire(id, false)
	if err != nil {
		return nil, err
	}

	ra := entryReaderAt{ctx: ctx, store: s, entry: entry}
	return &contentReader{
		SectionReader: io.NewSectionReader(ra, 0, entry.file.Size()),
		release:       func() { s.release(entry) },
	}, nil
}

// ReadContent returns a reader over the content as large as it is now.
// The reader must be closed.
func (s *FSContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	return s.openReader(ctx, id)
}

// ReadContentSeekable is ReadContent with Seek support.
func (s *FSContentStore) ReadContentSeekable(ctx context.Context, id content.ContentID) (io.ReadSeekCloser, error) {
	return s.openReader(ctx, id)
}

// GetContentSize returns the logical size of id. Chunk padding past the
// last write is not counted.
func (s *FSContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := s.check(ctx, id); err != nil {
		return 0, err
	}

	entry, err := s.acquire(id, false)
	if err != nil {
		return 0, err
	}
	defer s.release(entry)

	return uint64(entry.file.Size()), nil
}

// ContentExists reports whether id has a file.
func (s *FSContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := s.check(ctx, id); err != nil {
		return false, err
	}

	if _, err := os.Stat(s.getFilePath(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return true, nil
}

// GetStorageStats sums the logical sizes of all objects and reports the
// capacity of the filesystem holding them.
func (s *FSContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read content directory: %w", err)
	}

	var stats content.StorageStats
	for i, e := range entries {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if e.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(e.Name())
		if err != nil {
			continue
		}

		id := content.ContentID(raw)
		if entry, ok := s.files.get(id); ok {
			stats.UsedSize += uint64(entry.file.Size())
			s.release(entry)
		} else if info, err := e.Info(); err == nil {
			stats.UsedSize += uint64(info.Size())
		}
		stats.ContentCount++
	}
	if stats.ContentCount > 0 {
		stats.AverageSize = stats.UsedSize / stats.ContentCount
	}

	var st unix.Statfs_t
	if err := unix.Statfs(s.basePath, &st); err != nil {
		logger.Warn("Content store: statfs %s: %v", s.basePath, err)
	} else {
		stats.TotalSize = uint64(st.Blocks) * uint64(st.Bsize)
		stats.AvailableSize = uint64(st.Bavail) * uint64(st.Bsize)
	}
	return &stats, nil
}
