// Package content defines the content store: byte objects addressed by a
// ContentID and stored in files managed by the vault.
package content

import (
	"context"
	"io"
)

// ContentID identifies one content object. It is opaque to callers; the
// store decides how it maps to a file.
type ContentID string

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore provides read access to content objects.
//
// Design Principles:
//   - Context-aware: All operations check the context before doing I/O
//   - Consistent error handling: failures wrap the errors of errors.go
//   - Capability-based: writing and garbage collection are separate interfaces
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type ContentStore interface {
	// ReadContent returns a reader over the whole content.
	//
	// The reader sees the content as it is while being read; concurrent
	// writes may or may not be observed. The caller must Close it.
	//
	// Returns:
	//   - io.ReadCloser: Reader positioned at offset 0
	//   - error: ErrContentNotFound, or context errors
	ReadContent(ctx context.Context, id ContentID) (io.ReadCloser, error)

	// ReadAt reads into buf starting at offset.
	//
	// Follows io.ReaderAt: fewer than len(buf) bytes are returned only
	// together with io.EOF at the end of the content.
	ReadAt(ctx context.Context, id ContentID, buf []byte, offset int64) (int, error)

	// GetContentSize returns the logical size of the content in bytes.
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether content with the given ID exists.
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// GetStorageStats returns capacity and usage of the backing storage.
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// WritableContentStore adds mutation to ContentStore.
type WritableContentStore interface {
	ContentStore

	// WriteAt writes data at offset, creating the content if needed.
	//
	// Writing past the end extends the content; the gap reads as zeros.
	WriteAt(ctx context.Context, id ContentID, data []byte, offset int64) error

	// WriteContent replaces the whole content with data.
	WriteContent(ctx context.Context, id ContentID, data []byte) error

	// Truncate sets the size of the content. Growing fills with zeros.
	//
	// Returns ErrContentNotFound if the content does not exist.
	Truncate(ctx context.Context, id ContentID, newSize uint64) error

	// Delete removes the content. Deleting missing content is not an error.
	Delete(ctx context.Context, id ContentID) error

	// Sync flushes the content to stable storage.
	Sync(ctx context.Context, id ContentID) error
}

// SeekableContentStore supports random access readers.
type SeekableContentStore interface {
	ContentStore

	// ReadContentSeekable returns a reader supporting Seek.
	ReadContentSeekable(ctx context.Context, id ContentID) (io.ReadSeekCloser, error)
}

// GarbageCollectableStore supports enumerating and bulk removal of content.
type GarbageCollectableStore interface {
	WritableContentStore

	// ListAllContent returns the IDs of all stored content.
	ListAllContent(ctx context.Context) ([]ContentID, error)

	// DeleteBatch removes several objects.
	//
	// Returns:
	//   - failures: per-ID errors for objects that could not be removed
	//   - error: only for failures of the whole batch (e.g. cancellation)
	DeleteBatch(ctx context.Context, ids []ContentID) (failures map[ContentID]error, err error)
}

// ============================================================================
// Storage Statistics
// ============================================================================

// StorageStats contains statistics about content storage.
//
// Unsupported fields are set to 0.
type StorageStats struct {
	// TotalSize is the total capacity of the backing filesystem in bytes.
	TotalSize uint64 `json:"total_size" yaml:"total_size"`

	// UsedSize is the sum of all logical content sizes.
	UsedSize uint64 `json:"used_size" yaml:"used_size"`

	// AvailableSize is the space still available to the store in bytes.
	AvailableSize uint64 `json:"available_size" yaml:"available_size"`

	// ContentCount is the total number of content items stored.
	ContentCount uint64 `json:"content_count" yaml:"content_count"`

	// AverageSize is UsedSize / ContentCount, 0 when empty.
	AverageSize uint64 `json:"average_size" yaml:"average_size"`
}
