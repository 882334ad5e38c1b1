package resource

import "fmt"

// Kind identifies a class of scarce resource.
type Kind int

const (
	// Memory is heap memory
	Memory Kind = iota
	// FileHandle is OS file descriptors
	FileHandle
	// CPU is processing time
	CPU
	// Mmap is mappable address space
	Mmap
	// DiskStorage is space on the storage disks
	DiskStorage
	// StorageBandwidth is I/O bandwidth of the storage disks
	StorageBandwidth
	// DiskCache is space on cache disks
	DiskCache
	// CacheBandwidth is I/O bandwidth of cache disks
	CacheBandwidth

	numKinds
)

// Kinds lists all resource kinds in order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case FileHandle:
		return "filehandle"
	case CPU:
		return "cpu"
	case Mmap:
		return "mmap"
	case DiskStorage:
		return "diskstorage"
	case StorageBandwidth:
		return "storagebandwidth"
	case DiskCache:
		return "diskcache"
	case CacheBandwidth:
		return "cachebandwidth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) valid() bool {
	return k >= 0 && k < numKinds
}

// Try is the escalation level with which handlers are asked to free
// resources. Levels are ordered: a handler reporting a level at least as
// high as the requested one has satisfied the request.
type Try int

const (
	// TryNone means nothing was (or needs to be) freed
	TryNone Try = iota
	// TryOne frees a single entry, fast path
	TryOne
	// TrySome frees a small fraction
	TrySome
	// TryMany frees a large fraction
	TryMany
	// TryAll frees everything that is not in use
	TryAll
	// TryPanic is the final pass before the process exits
	TryPanic
	// TryUnregister is delivered once when a handler is removed
	TryUnregister
)

// Next returns the level to escalate to when t was not satisfied.
// TryPanic and TryUnregister are terminal.
func (t Try) Next() Try {
	switch t {
	case TryNone:
		return TryOne
	case TryOne:
		return TrySome
	case TrySome:
		return TryMany
	case TryMany:
		return TryAll
	case TryUnregister:
		return TryUnregister
	default:
		return TryPanic
	}
}

// Satisfies reports whether a handler result of t fulfils a request at
// level want.
func (t Try) Satisfies(want Try) bool {
	return t != TryUnregister && t >= want
}

func (t Try) String() string {
	switch t {
	case TryNone:
		return "none"
	case TryOne:
		return "one"
	case TrySome:
		return "some"
	case TryMany:
		return "many"
	case TryAll:
		return "all"
	case TryPanic:
		return "panic"
	case TryUnregister:
		return "unregister"
	default:
		return fmt.Sprintf("try(%d)", int(t))
	}
}
