//go:build unix

package sysmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Map creates a shared mapping of length bytes of fd starting at offset.
// The offset must be page-aligned.
func Map(fd int, offset int64, length int, writable bool) (*Region, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}
	if offset < 0 || offset%int64(pageSize) != 0 {
		return nil, ErrInvalidOffset
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	ptr, err := unix.MmapPtr(fd, offset, nil, uintptr(length), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Region{
		data:     unsafe.Slice((*byte)(ptr), length),
		offset:   offset,
		writable: writable,
	}, nil
}

// Addr returns the virtual address of the first mapped byte.
func (r *Region) Addr() uintptr {
	if len(r.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.data[0]))
}

// Shrink unmaps everything past newLen. newLen must be page-aligned and
// smaller than the current length.
func (r *Region) Shrink(newLen int) error {
	if r.data == nil {
		return ErrNotMapped
	}
	if newLen <= 0 || newLen >= len(r.data) || newLen%pageSize != 0 {
		return ErrInvalidSize
	}

	tail := unsafe.Pointer(&r.data[newLen])
	if err := unix.MunmapPtr(tail, uintptr(len(r.data)-newLen)); err != nil {
		return &Error{Op: "munmap tail", Err: err}
	}
	r.data = r.data[:newLen:newLen]
	return nil
}

// Sync flushes changes to disk synchronously.
func (r *Region) Sync() error {
	if r.data == nil {
		return ErrNotMapped
	}
	return unix.Msync(r.data, unix.MS_SYNC)
}

// AdviseSequential hints that pages will be accessed sequentially.
func (r *Region) AdviseSequential() error {
	if r.data == nil {
		return ErrNotMapped
	}
	return unix.Madvise(r.data, unix.MADV_SEQUENTIAL)
}

// Unmap releases the mapping. Calling it twice is a no-op.
func (r *Region) Unmap() error {
	if r.data == nil {
		return nil
	}

	err := unix.MunmapPtr(unsafe.Pointer(&r.data[0]), uintptr(len(r.data)))
	r.data = nil
	if err != nil {
		return &Error{Op: "munmap", Err: err}
	}
	return nil
}
