// Package mru implements the idle list shared by the vault caches.
//
// Entries are checked in when they become unused and checked out again when
// they are reactivated. The least recently checked-in entry is the first one
// to be reused (Pop) or destroyed (Age).
//
// Entries live in a slot map. A Node handle carries the slot index plus the
// generation the slot had when the entry was checked in, so a handle that
// outlived its entry (popped, aged or checked out elsewhere) is detected
// instead of corrupting the list.
//
// Thread Safety: none. The owning cache serializes all calls.
package mru

const nilSlot = -1

// Node identifies an idle entry. The zero Node is never valid.
type Node struct {
	slot int32
	gen  uint32
}

// IsZero reports whether n was never assigned by Checkin.
func (n Node) IsZero() bool {
	return n.gen == 0
}

type slot[T any] struct {
	value T
	prev  int32
	next  int32
	gen   uint32
	used  bool
}

// Cache is an MRU ordered set of idle entries.
type Cache[T any] struct {
	slots   []slot[T]
	free    []int32
	head    int32 // most recently checked in
	tail    int32 // least recently checked in
	count   int
	destroy func(T)
}

// New creates an empty cache. destroy is invoked for every entry removed by
// Age; it may be nil.
func New[T any](destroy func(T)) *Cache[T] {
	return &Cache[T]{
		head:    nilSlot,
		tail:    nilSlot,
		destroy: destroy,
	}
}

// Len returns the number of idle entries.
func (c *Cache[T]) Len() int {
	return c.count
}

// Contains reports whether n still refers to an idle entry.
func (c *Cache[T]) Contains(n Node) bool {
	if n.IsZero() || n.slot < 0 || int(n.slot) >= len(c.slots) {
		return false
	}
	s := &c.slots[n.slot]
	return s.used && s.gen == n.gen
}

// Checkin adds v as the most recently used idle entry.
func (c *Cache[T]) Checkin(v T) Node {
	var idx int32
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.slots = append(c.slots, slot[T]{})
		idx = int32(len(c.slots) - 1)
	}

	s := &c.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.value = v
	s.used = true
	s.prev = nilSlot
	s.next = c.head

	if c.head != nilSlot {
		c.slots[c.head].prev = idx
	}
	c.head = idx
	if c.tail == nilSlot {
		c.tail = idx
	}
	c.count++

	return Node{slot: idx, gen: s.gen}
}

// Checkout removes the entry referred to by n. It returns false when n is
// stale.
func (c *Cache[T]) Checkout(n Node) (T, bool) {
	if !c.Contains(n) {
		var zero T
		return zero, false
	}
	return c.unlink(n.slot), true
}

// Pop removes and returns the least recently checked-in entry without
// destroying it, so the caller can reuse it.
func (c *Cache[T]) Pop() (T, bool) {
	if c.tail == nilSlot {
		var zero T
		return zero, false
	}
	return c.unlink(c.tail), true
}

// Age destroys up to n of the oldest entries and returns how many were
// removed. A negative n ages everything.
func (c *Cache[T]) Age(n int) int {
	aged := 0
	for (n < 0 || aged < n) && c.tail != nilSlot {
		v := c.unlink(c.tail)
		if c.destroy != nil {
			c.destroy(v)
		}
		aged++
	}
	return aged
}

// AgeWhile destroys the oldest entries for as long as expired reports true.
func (c *Cache[T]) AgeWhile(expired func(T) bool) int {
	aged := 0
	for c.tail != nilSlot && expired(c.slots[c.tail].value) {
		v := c.unlink(c.tail)
		if c.destroy != nil {
			c.destroy(v)
		}
		aged++
	}
	return aged
}

func (c *Cache[T]) unlink(idx int32) T {
	s := &c.slots[idx]

	if s.prev != nilSlot {
		c.slots[s.prev].next = s.next
	} else {
		c.head = s.next
	}
	if s.next != nilSlot {
		c.slots[s.next].prev = s.prev
	} else {
		c.tail = s.prev
	}

	v := s.value
	var zero T
	s.value = zero
	s.used = false
	s.prev = nilSlot
	s.next = nilSlot
	c.free = append(c.free, idx)
	c.count--

	return v
}
