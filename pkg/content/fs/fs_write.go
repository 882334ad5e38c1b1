package fs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/dittovault/pkg/content"
)

// WriteAt writes data at offset, creating the object when missing.
//
// The file grows in whole chunks while it is open; the logical size is the
// end of the furthest write and the padding is cut when the file is closed.
func (s *FSContentStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	unlock := s.files.lockFile(id)
	defer unlock()

	entry, err := s.acquire(id, true)
	if err != nil {
		return err
	}
	defer s.release(entry)

	start := time.Now()
	n, err := s.writeAt(ctx, entry, data, offset)
	s.metrics.ObserveWrite(int64(n), time.Since(start), err)
	return err
}

func (s *FSContentStore) writeAt(ctx context.Context, entry *cacheEntry, data []byte, offset int64) (int, error) {
	done := 0
	for done < len(data) {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		pos := offset + int64(done)
		n := int(min(int64(len(data)-done), s.chunkSize-pos%s.chunkSize))
		err := entry.file.MapSection(pos, int64(n), func(b []byte) error {
			copy(b, data[done:done+n])
			return nil
		})
		if err != nil {
			return done, fmt.Errorf("failed to write content: %w", err)
		}
		done += n
	}
	return done, nil
}

// WriteContent replaces the object with data.
func (s *FSContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}

	unlock := s.files.lockFile(id)
	defer unlock()

	entry, err := s.acquire(id, true)
	if err != nil {
		return err
	}
	defer s.release(entry)

	if err := entry.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate content: %w", err)
	}

	start := time.Now()
	n, err := s.writeAt(ctx, entry, data, 0)
	s.metrics.ObserveWrite(int64(n), time.Since(start), err)
	return err
}

// Truncate sets the logical size of id. Growing reads back zeros.
func (s *FSContentStore) Truncate(ctx context.Context, id content.ContentID, newSize uint64) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}
	if newSize > uint64(1<<63-1) {
		return fmt.Errorf("size %d: %w", newSize, content.ErrInvalidSize)
	}

	unlock := s.files.lockFile(id)
	defer unlock()

	entry, err := s.acquire(id, false)
	if err != nil {
		return err
	}
	defer s.release(entry)

	if err := entry.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("failed to truncate content: %w", err)
	}
	return nil
}

// Sync flushes the mapped windows and the file of id.
func (s *FSContentStore) Sync(ctx context.Context, id content.ContentID) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}

	entry, err := s.acquire(id, false)
	if err != nil {
		return err
	}
	defer s.release(entry)

	if err := entry.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync content: %w", err)
	}
	return nil
}

// Delete removes id. Readers that still hold it open keep reading the
// unlinked file until they close.
func (s *FSContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}

	unlock := s.files.lockFile(id)
	defer unlock()

	err := s.files.remove(id)
	if rmErr := os.Remove(s.getFilePath(id)); rmErr != nil && !os.IsNotExist(rmErr) {
		err = fmt.Errorf("failed to delete content: %w", rmErr)
	}
	s.metrics.ObserveDelete(err)
	return err
}
