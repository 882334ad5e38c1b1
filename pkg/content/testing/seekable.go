package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// RunSeekableTests executes all SeekableContentStore tests.
func (suite *StoreTestSuite) RunSeekableTests(t *testing.T) {
	t.Run("Seek_Basic", suite.testSeekBasic)
	t.Run("Seek_FromEnd", suite.testSeekFromEnd)
}

func (suite *StoreTestSuite) testSeekBasic(t *testing.T) {
	store := suite.NewStore(t)
	seekable, ok := store.(content.SeekableContentStore)
	if !ok {
		t.Skip("Store does not implement SeekableContentStore")
	}
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("seek-basic")
	put(t, writable, id, []byte("0123456789"))

	r, err := seekable.ReadContentSeekable(testContext(), id)
	require.NoError(t, err)
	defer r.Close()

	pos, err := r.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	buf := make([]byte, 3)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("456"), buf)

	pos, err = r.Seek(1, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), rest)
}

func (suite *StoreTestSuite) testSeekFromEnd(t *testing.T) {
	store := suite.NewStore(t)
	seekable, ok := store.(content.SeekableContentStore)
	if !ok {
		t.Skip("Store does not implement SeekableContentStore")
	}
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("seek-end")
	data := patterned(1000)
	put(t, writable, id, data)

	r, err := seekable.ReadContentSeekable(testContext(), id)
	require.NoError(t, err)
	defer r.Close()

	pos, err := r.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(990), pos)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data[990:], rest)
}
