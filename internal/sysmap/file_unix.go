//go:build unix

package sysmap

import (
	"errors"
	"math"

	"golang.org/x/sys/unix"
)

// FileInfo is the subset of stat(2) the vault caches per descriptor.
type FileInfo struct {
	Dev  uint64
	Ino  uint64
	Size int64
}

// SameFile reports whether both infos refer to the same inode.
func (fi FileInfo) SameFile(other FileInfo) bool {
	return fi.Dev == other.Dev && fi.Ino == other.Ino
}

func fromStat(st *unix.Stat_t) FileInfo {
	return FileInfo{
		Dev:  uint64(st.Dev), //nolint:unconvert // int32 on darwin
		Ino:  st.Ino,
		Size: st.Size,
	}
}

// Stat returns the identity and size of the file at path.
func Stat(path string) (FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return FileInfo{}, err
	}
	return fromStat(&st), nil
}

// Fstat returns the identity and size of an open descriptor.
func Fstat(fd int) (FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return FileInfo{}, err
	}
	return fromStat(&st), nil
}

// Open opens path with close-on-exec set.
func Open(path string, flags int, mode uint32) (int, error) {
	return unix.Open(path, flags|unix.O_CLOEXEC, mode)
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// Truncate sets the size of the file behind fd.
func Truncate(fd int, size int64) error {
	return unix.Ftruncate(fd, size)
}

// Fsync flushes the file behind fd to stable storage.
func Fsync(fd int) error {
	return unix.Fsync(fd)
}

// LockFile places a blocking advisory lock on the whole file.
func LockFile(fd int, exclusive bool) error {
	lk := unix.Flock_t{
		Type:   unix.F_RDLCK,
		Whence: 0,
		Start:  0,
		Len:    0,
	}
	if exclusive {
		lk.Type = unix.F_WRLCK
	}
	return unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &lk)
}

// UnlockFile releases an advisory lock set by LockFile.
func UnlockFile(fd int) error {
	lk := unix.Flock_t{Type: unix.F_UNLCK}
	return unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &lk)
}

// FileLimit returns the soft RLIMIT_NOFILE of the process, or 0 when it
// cannot be determined.
func FileLimit() uint64 {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0
	}
	return rl.Cur
}

// AddressSpaceLimit returns the soft RLIMIT_AS of the process. ok is false
// when the limit is infinite or unknown.
func AddressSpaceLimit() (limit uint64, ok bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return 0, false
	}
	if rl.Cur >= math.MaxInt64 {
		return 0, false
	}
	return rl.Cur, true
}

// IsOutOfMemory reports whether err is the ENOMEM that mmap returns when the
// address space is exhausted.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, unix.ENOMEM)
}

// IsTooManyFiles reports whether err signals descriptor exhaustion.
func IsTooManyFiles(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}
