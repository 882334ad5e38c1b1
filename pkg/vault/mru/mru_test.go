package mru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PopReturnsOldest(t *testing.T) {
	c := New[string](nil)
	c.Checkin("a")
	c.Checkin("b")
	c.Checkin("c")

	v, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = c.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_PopEmpty(t *testing.T) {
	c := New[int](nil)
	_, ok := c.Pop()
	assert.False(t, ok)
}

func TestCache_CheckoutSpecificNode(t *testing.T) {
	c := New[string](nil)
	c.Checkin("a")
	nb := c.Checkin("b")
	c.Checkin("c")

	v, ok := c.Checkout(nb)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.False(t, c.Contains(nb))

	// Remaining order is untouched
	v, _ = c.Pop()
	assert.Equal(t, "a", v)
	v, _ = c.Pop()
	assert.Equal(t, "c", v)
}

func TestCache_StaleNodeAfterSlotReuse(t *testing.T) {
	c := New[string](nil)
	na := c.Checkin("a")

	_, ok := c.Pop()
	require.True(t, ok)

	// Same slot is reused with a new generation
	nb := c.Checkin("b")
	assert.Equal(t, na.slot, nb.slot)

	_, ok = c.Checkout(na)
	assert.False(t, ok, "stale node must not check out the new occupant")
	assert.True(t, c.Contains(nb))
}

func TestCache_ZeroNode(t *testing.T) {
	c := New[int](nil)
	c.Checkin(1)

	var n Node
	assert.True(t, n.IsZero())
	assert.False(t, c.Contains(n))
	_, ok := c.Checkout(n)
	assert.False(t, ok)
}

func TestCache_AgeCallsDestructorOldestFirst(t *testing.T) {
	var destroyed []int
	c := New(func(v int) { destroyed = append(destroyed, v) })
	for i := 1; i <= 5; i++ {
		c.Checkin(i)
	}

	assert.Equal(t, 2, c.Age(2))
	assert.Equal(t, []int{1, 2}, destroyed)
	assert.Equal(t, 3, c.Len())

	assert.Equal(t, 3, c.Age(-1))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, destroyed)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Age(1))
}

func TestCache_AgeWhile(t *testing.T) {
	c := New[int](nil)
	for i := 1; i <= 5; i++ {
		c.Checkin(i)
	}

	aged := c.AgeWhile(func(v int) bool { return v < 3 })
	assert.Equal(t, 2, aged)

	v, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestCache_CheckinMovesToHead(t *testing.T) {
	c := New[string](nil)
	na := c.Checkin("a")
	c.Checkin("b")

	// Reactivate a, then return it: it becomes the newest entry
	_, ok := c.Checkout(na)
	require.True(t, ok)
	c.Checkin("a")

	v, _ := c.Pop()
	assert.Equal(t, "b", v)
}
