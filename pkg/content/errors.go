package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across content store implementations. Callers should check for them with
// errors.Is.
//
// Usage Pattern:
//
//	n, err := store.ReadAt(ctx, id, buf, off)
//	if errors.Is(err, content.ErrContentNotFound) {
//	    // report a missing object
//	}
//
// Error Wrapping:
//
// Implementations should wrap these errors with additional context:
//
//	return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
var (
	// ErrContentNotFound indicates the requested content does not exist.
	//
	// This error is returned when:
	//   - ReadAt() or ReadContent() called with non-existent ContentID
	//   - GetContentSize() called with non-existent ContentID
	//   - Truncate() called with non-existent ContentID
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidOffset indicates the offset is invalid for the operation.
	//
	// This error is returned when the offset is negative. An offset beyond
	// the current size is NOT an error for WriteAt (the gap reads as zeros).
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidSize indicates the size parameter is invalid.
	ErrInvalidSize = errors.New("invalid size")

	// ErrStorageFull indicates the storage backend has no available space.
	//
	// This is a transient error - it may succeed after cleanup.
	ErrStorageFull = errors.New("storage full")

	// ErrInvalidContentID indicates the ContentID format is invalid.
	//
	// This error is returned when:
	//   - ContentID is empty
	//   - A stored name does not decode to a ContentID
	ErrInvalidContentID = errors.New("invalid content ID")

	// ErrUnavailable indicates the store has been closed.
	ErrUnavailable = errors.New("content store unavailable")
)
