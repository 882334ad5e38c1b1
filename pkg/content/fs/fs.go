// Package fs implements a content store keeping each content object in its
// own file under a base directory. All file access goes through a vault:
// reads and writes copy through mapped windows, so open descriptors and
// mapped address space stay bounded however many objects are in use.
package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/content"
	"github.com/marmos91/dittovault/pkg/vault"
)

const (
	// DefaultChunkSize is the mapping granularity of content files.
	DefaultChunkSize = 1 << 20

	// DefaultMaxOpenFiles bounds the content files kept open between calls.
	DefaultMaxOpenFiles = 512
)

// FSContentStoreConfig configures a FSContentStore.
type FSContentStoreConfig struct {
	// Path is the directory holding the content files
	Path string `mapstructure:"path" validate:"required"`

	// ChunkSize is the mapping granularity, a power of two of at least one
	// page. Larger chunks mean fewer, larger windows.
	ChunkSize int64 `mapstructure:"chunk_size" validate:"omitempty,min=4096"`

	// MaxOpenFiles bounds the files kept open between operations
	MaxOpenFiles int `mapstructure:"max_open_files" validate:"omitempty,min=1"`
}

// ApplyDefaults fills in zero values.
func (c *FSContentStoreConfig) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxOpenFiles == 0 {
		c.MaxOpenFiles = DefaultMaxOpenFiles
	}
}

// FSContentStore implements content.GarbageCollectableStore and
// content.SeekableContentStore on top of a vault.
//
// File names are the hex encoding of the ContentID, so any ID maps to a
// valid name and ListAllContent can recover the IDs.
//
// Thread Safety: Safe for concurrent use. Mutations of one object are
// serialized; reads run concurrently with each other and with writes.
type FSContentStore struct {
	basePath  string
	vault     *vault.Vault
	chunkSize int64
	files     *fileCache
	metrics   content.Metrics
	closed    atomic.Bool
}

var (
	_ content.GarbageCollectableStore = (*FSContentStore)(nil)
	_ content.SeekableContentStore    = (*FSContentStore)(nil)
)

// NewFSContentStore creates a store under cfg.Path, creating the directory
// if needed. metrics may be nil.
func NewFSContentStore(ctx context.Context, v *vault.Vault, cfg FSContentStoreConfig, metrics content.Metrics) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if cfg.Path == "" {
		return nil, errors.New("content store path is required")
	}
	if cfg.ChunkSize&(cfg.ChunkSize-1) != 0 {
		return nil, fmt.Errorf("chunk size %d is not a power of two", cfg.ChunkSize)
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	if metrics == nil {
		metrics = content.NoopMetrics{}
	}

	logger.Info("Content store at %s (chunk_size=%d max_open_files=%d)",
		cfg.Path, cfg.ChunkSize, cfg.MaxOpenFiles)

	return &FSContentStore{
		basePath:  cfg.Path,
		vault:     v,
		chunkSize: cfg.ChunkSize,
		files:     newFileCache(cfg.MaxOpenFiles),
		metrics:   metrics,
	}, nil
}

func (s *FSContentStore) getFilePath(id content.ContentID) string {
	return filepath.Join(s.basePath, hex.EncodeToString([]byte(id)))
}

// check validates the call before any I/O.
func (s *FSContentStore) check(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return content.ErrUnavailable
	}
	if id == "" {
		return content.ErrInvalidContentID
	}
	return nil
}

// acquire returns the open file of id with a cache reference taken. Without
// create a missing object fails with content.ErrContentNotFound.
func (s *FSContentStore) acquire(id content.ContentID, create bool) (*cacheEntry, error) {
	if entry, ok := s.files.get(id); ok {
		return entry, nil
	}

	flags := vault.ReadWrite
	if create {
		flags = vault.Create
	}
	path := s.getFilePath(id)
	f, err := s.vault.Open(path, flags)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	if _, err := f.SetChunksize(s.chunkSize, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to set chunk size: %w", err)
	}

	entry, err := s.files.put(id, f)
	if err != nil {
		logger.Warn("Content store: closing evicted files: %v", err)
	}
	size, _ := s.files.stats()
	s.metrics.RecordOpenFiles(size)
	return entry, nil
}

func (s *FSContentStore) release(entry *cacheEntry) {
	if err := s.files.release(entry); err != nil {
		logger.Warn("Content store: closing %s: %v", entry.id, err)
	}
}

// Close closes all cached files. Readers still open keep their file until
// they are closed.
func (s *FSContentStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.files.close()
}
