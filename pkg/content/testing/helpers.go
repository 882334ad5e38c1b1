package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// Helpers stop the test on the first store error: once a write fails the
// remaining checks say nothing about the store.

func put(t *testing.T, store content.WritableContentStore, id content.ContentID, data []byte) {
	t.Helper()
	require.NoError(t, store.WriteContent(testContext(), id, data), "write %s", id)
}

func putAt(t *testing.T, store content.WritableContentStore, id content.ContentID, data []byte, offset int64) {
	t.Helper()
	require.NoError(t, store.WriteAt(testContext(), id, data, offset), "write %s at %d", id, offset)
}

func resize(t *testing.T, store content.WritableContentStore, id content.ContentID, size uint64) {
	t.Helper()
	require.NoError(t, store.Truncate(testContext(), id, size), "truncate %s to %d", id, size)
}

func remove(t *testing.T, store content.WritableContentStore, id content.ContentID) {
	t.Helper()
	require.NoError(t, store.Delete(testContext(), id), "delete %s", id)
}

// readAll reads id through the streaming reader.
func readAll(t *testing.T, store content.ContentStore, id content.ContentID) []byte {
	t.Helper()
	r, err := store.ReadContent(testContext(), id)
	require.NoError(t, err, "open reader for %s", id)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err, "read %s", id)
	return data
}

func sizeOf(t *testing.T, store content.ContentStore, id content.ContentID) uint64 {
	t.Helper()
	size, err := store.GetContentSize(testContext(), id)
	require.NoError(t, err, "size of %s", id)
	return size
}

func requireExists(t *testing.T, store content.ContentStore, id content.ContentID, want bool) {
	t.Helper()
	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err)
	require.Equal(t, want, exists, "existence of %s", id)
}

func checkSize(t *testing.T, store content.ContentStore, id content.ContentID, want uint64) {
	t.Helper()
	assert.Equal(t, want, sizeOf(t, store, id), "logical size of %s", id)
}

// checkContent compares id with want through both read paths. The
// positional read of the last byte catches chunk padding leaking into the
// logical size.
func checkContent(t *testing.T, store content.ContentStore, id content.ContentID, want []byte) {
	t.Helper()
	checkSize(t, store, id, uint64(len(want)))
	assert.Equal(t, want, readAll(t, store, id), "content of %s", id)

	if len(want) == 0 {
		return
	}
	last := make([]byte, 2)
	n, err := store.ReadAt(testContext(), id, last, int64(len(want)-1))
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, want[len(want)-1], last[0])
}

// patterned returns n bytes whose value depends on the page and the offset
// within it, so a window mapped at the wrong file offset reads differently.
func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%251) ^ byte(i>>12)
	}
	return data
}

func objectID(name string) content.ContentID {
	return content.ContentID("obj-" + name)
}
