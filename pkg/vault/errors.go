package vault

import (
	"errors"
	"fmt"
)

// ============================================================================
// Vault Errors
// ============================================================================

// Failures below the resource-collector panic level are returned to the
// caller. OS failures are wrapped in *Error with the errno attached, so
// callers can test for both the operation and the code:
//
//	m, err := f.MmapAcquire(0, 4096)
//	if errors.Is(err, vault.ErrMmapNotWritable) {
//	    ...
//	}
//	if errors.Is(err, unix.ENOSPC) {
//	    ...
//	}

var (
	// ErrFileChanged indicates that the file behind a descriptor no longer
	// matches the (device, inode) recorded when it was opened. This is
	// detected when a lazily deferred open is finally performed.
	ErrFileChanged = errors.New("file changed")

	// ErrNoHandle indicates the handle quota and the idle pool are both
	// exhausted and the OS refused to open another descriptor.
	ErrNoHandle = errors.New("no file handle available")

	// ErrMmapNotWritable indicates a mapping past the end of a read-only
	// file was requested.
	ErrMmapNotWritable = errors.New("mapping past end of read-only file")

	// ErrMmapSpace indicates all address-space recovery strategies failed.
	ErrMmapSpace = errors.New("address space exhausted")

	// ErrNoChunksize indicates mapped access to a file whose chunk size was
	// never set.
	ErrNoChunksize = errors.New("chunksize not set")

	// ErrInvalidChunksize indicates a chunk size that is not a power of two
	// multiple of the page size, or a bias that is not page aligned.
	ErrInvalidChunksize = errors.New("invalid chunksize")

	// ErrInvalidRange indicates a negative offset or an empty range.
	ErrInvalidRange = errors.New("invalid range")

	// ErrClosed indicates use of a closed vault or file.
	ErrClosed = errors.New("vault closed")
)

// Error records a failed vault operation together with the path and the
// underlying cause.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("vault: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vault: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}
