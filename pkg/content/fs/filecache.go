package fs

import (
	"container/list"
	"sync"

	"go.uber.org/multierr"

	"github.com/marmos91/dittovault/pkg/content"
	"github.com/marmos91/dittovault/pkg/vault"
)

// fileCache keeps recently used content files open.
//
// An open vault.File keeps its descriptor alive, and with it the mapped
// windows and the OS handle, so repeated access to the same content skips
// the open path. Entries in use are never evicted; the cache may exceed
// maxSize while more files than that are busy.
type fileCache struct {
	maxSize   int
	mu        sync.Mutex
	cache     map[content.ContentID]*list.Element
	lru       *list.List
	fileLocks sync.Map
}

type cacheEntry struct {
	id      content.ContentID
	file    *vault.File
	refs    int
	removed bool
}

func newFileCache(maxSize int) *fileCache {
	if maxSize < 1 {
		maxSize = 256
	}
	return &fileCache{
		maxSize: maxSize,
		cache:   make(map[content.ContentID]*list.Element),
		lru:     list.New(),
	}
}

// get returns the cached entry for id with a reference taken.
func (c *fileCache) get(id content.ContentID) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[id]
	if !exists {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	entry := elem.Value.(*cacheEntry)
	entry.refs++
	return entry, true
}

// put inserts file for id and returns the entry with a reference taken.
// When another goroutine inserted id first, file is closed and the cached
// entry is returned instead.
func (c *fileCache) put(id content.ContentID, file *vault.File) (*cacheEntry, error) {
	c.mu.Lock()

	if elem, exists := c.cache[id]; exists {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.refs++
		c.mu.Unlock()
		return entry, file.Close()
	}

	entry := &cacheEntry{id: id, file: file, refs: 1}
	c.cache[id] = c.lru.PushFront(entry)
	victims := c.evictLocked()
	c.mu.Unlock()

	return entry, closeAll(victims)
}

// release drops the reference taken by get or put.
func (c *fileCache) release(entry *cacheEntry) error {
	c.mu.Lock()
	entry.refs--
	var victims []*vault.File
	if entry.refs == 0 {
		if entry.removed {
			victims = append(victims, entry.file)
		} else {
			victims = c.evictLocked()
		}
	}
	c.mu.Unlock()

	return closeAll(victims)
}

// remove drops id from the cache. The file is closed once unused.
func (c *fileCache) remove(id content.ContentID) error {
	c.mu.Lock()
	elem, exists := c.cache[id]
	if !exists {
		c.mu.Unlock()
		return nil
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.cache, id)
	entry.removed = true
	busy := entry.refs > 0
	c.mu.Unlock()

	if busy {
		return nil
	}
	return entry.file.Close()
}

// evictLocked unlinks idle entries from the tail while the cache is over
// size and returns their files for closing outside the lock.
func (c *fileCache) evictLocked() []*vault.File {
	var victims []*vault.File
	elem := c.lru.Back()
	for c.lru.Len() > c.maxSize && elem != nil {
		prev := elem.Prev()
		entry := elem.Value.(*cacheEntry)
		if entry.refs == 0 {
			c.lru.Remove(elem)
			delete(c.cache, entry.id)
			entry.removed = true
			victims = append(victims, entry.file)
		}
		elem = prev
	}
	return victims
}

// close closes every idle file. Busy files are closed by their last release.
func (c *fileCache) close() error {
	c.mu.Lock()
	var victims []*vault.File
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry)
		c.lru.Remove(elem)
		delete(c.cache, entry.id)
		entry.removed = true
		if entry.refs == 0 {
			victims = append(victims, entry.file)
		}
		elem = next
	}
	c.mu.Unlock()

	c.fileLocks.Range(func(key, _ any) bool {
		c.fileLocks.Delete(key)
		return true
	})
	return closeAll(victims)
}

func closeAll(files []*vault.File) error {
	var errs error
	for _, f := range files {
		errs = multierr.Append(errs, f.Close())
	}
	return errs
}

// lockFile serializes mutations of one content object. It returns the
// matching unlock.
func (c *fileCache) lockFile(id content.ContentID) func() {
	value, _ := c.fileLocks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// stats returns the number of cached files and the configured maximum.
func (c *fileCache) stats() (size int, maxSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.maxSize
}
