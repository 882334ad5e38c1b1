// Package sysmap wraps the raw memory mapping syscalls used by the vault.
//
// A Region owns exactly one mmap'ed address range. Unlike unix.Mmap, regions
// are created through MmapPtr so that the tail of a mapping can be unmapped
// independently (see Region.Shrink).
package sysmap

import (
	"os"
)

// Region represents one memory-mapped window of a file.
type Region struct {
	data     []byte
	offset   int64
	writable bool
}

// Bytes returns the mapped byte slice.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the current mapped length.
func (r *Region) Len() int {
	return len(r.data)
}

// Offset returns the file offset the region starts at.
func (r *Region) Offset() int64 {
	return r.offset
}

// Writable returns true if the region was mapped with write permission.
func (r *Region) Writable() bool {
	return r.writable
}

// Error represents a mapping syscall error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "sysmap: " + e.Op + ": " + e.Err.Error()
	}
	return "sysmap: " + e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common errors
var (
	ErrInvalidSize   = &Error{Op: "invalid size"}
	ErrInvalidOffset = &Error{Op: "invalid offset"}
	ErrNotMapped     = &Error{Op: "not mapped"}
)

var pageSize = os.Getpagesize()

// PageSize returns the system page size.
func PageSize() int {
	return pageSize
}
