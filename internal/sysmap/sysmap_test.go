//go:build unix

package sysmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "region"), os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMap_WriteVisibleThroughFile(t *testing.T) {
	f := createFile(t, int64(PageSize()))

	r, err := Map(int(f.Fd()), 0, PageSize(), true)
	require.NoError(t, err)
	defer r.Unmap()

	copy(r.Bytes()[10:], "hello")
	require.NoError(t, r.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	assert.NotZero(t, r.Addr())
}

func TestMap_InvalidArguments(t *testing.T) {
	f := createFile(t, int64(PageSize()))

	_, err := Map(int(f.Fd()), 0, 0, false)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = Map(int(f.Fd()), 1, PageSize(), false)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestRegion_Shrink(t *testing.T) {
	f := createFile(t, int64(4*PageSize()))

	r, err := Map(int(f.Fd()), 0, 4*PageSize(), true)
	require.NoError(t, err)
	defer r.Unmap()

	require.NoError(t, r.Shrink(2*PageSize()))
	assert.Equal(t, 2*PageSize(), r.Len())
	assert.Equal(t, 2*PageSize(), cap(r.Bytes()))

	assert.ErrorIs(t, r.Shrink(3*PageSize()), ErrInvalidSize)
	assert.ErrorIs(t, r.Shrink(100), ErrInvalidSize)
}

func TestRegion_UnmapTwice(t *testing.T) {
	f := createFile(t, int64(PageSize()))

	r, err := Map(int(f.Fd()), 0, PageSize(), false)
	require.NoError(t, err)

	require.NoError(t, r.Unmap())
	require.NoError(t, r.Unmap())
	assert.ErrorIs(t, r.Sync(), ErrNotMapped)
}
