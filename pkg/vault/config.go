package vault

import (
	"math/bits"

	"github.com/marmos91/dittovault/internal/sysmap"
)

const (
	// reserved descriptors left to the rest of the process when the handle
	// quota is derived from RLIMIT_NOFILE
	reservedHandles = 32

	asLimit32 = 3 << 30   // 3 GiB
	asLimit64 = 192 << 40 // 192 TiB
	window32  = 128 << 20 // 128 MiB
	window64  = 2 << 30   // 2 GiB

	minHandles = 4
)

// Config holds the vault tunables. Zero values are replaced by defaults
// derived from the process limits, see ApplyDefaults.
type Config struct {
	// MaxHandles is the FileHandleCache quota.
	MaxHandles int `mapstructure:"max_handles" yaml:"max_handles"`

	// AsLimit is the address-space ceiling of the MmapCache in bytes.
	AsLimit int64 `mapstructure:"as_limit" yaml:"as_limit"`

	// WindowSize is the default mapping window in bytes. Writable windows
	// smaller than this grow towards it.
	WindowSize int64 `mapstructure:"window_size" yaml:"window_size"`
}

// DefaultMaxHandles derives the handle quota from RLIMIT_NOFILE.
func DefaultMaxHandles() int {
	nofile := sysmap.FileLimit()
	switch {
	case nofile == 0:
		return 64
	case nofile > 2*reservedHandles:
		n := nofile - reservedHandles
		if n > 1<<20 {
			n = 1 << 20
		}
		return int(n)
	default:
		return int(nofile / 2)
	}
}

// DefaultAsLimit derives the mapping ceiling from RLIMIT_AS, falling back
// to a constant for the platform width when the limit is infinite.
func DefaultAsLimit() int64 {
	if limit, ok := sysmap.AddressSpaceLimit(); ok {
		return int64(limit)
	}
	if bits.UintSize == 32 {
		return asLimit32
	}
	return asLimit64
}

// DefaultWindowSize returns the mapping window for the platform width.
func DefaultWindowSize() int64 {
	if bits.UintSize == 32 {
		return window32
	}
	return window64
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxHandles <= 0 {
		c.MaxHandles = DefaultMaxHandles()
	}
	if c.MaxHandles < minHandles {
		c.MaxHandles = minHandles
	}
	if c.AsLimit <= 0 {
		c.AsLimit = DefaultAsLimit()
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize()
	}
	if page := int64(sysmap.PageSize()); c.WindowSize < page {
		c.WindowSize = page
	}
}
