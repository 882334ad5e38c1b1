package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// RunBasicTests executes the read-side ContentStore tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("ReadContent_NotFound", suite.testReadContentNotFound)
	t.Run("GetContentSize_NotFound", suite.testGetContentSizeNotFound)
	t.Run("ContentExists_Missing", suite.testContentExistsMissing)
	t.Run("ReadAt_Basic", suite.testReadAtBasic)
	t.Run("ReadAt_PastEnd", suite.testReadAtPastEnd)
	t.Run("ReadAt_NegativeOffset", suite.testReadAtNegativeOffset)
	t.Run("ReadAt_EmptyContent", suite.testReadAtEmptyContent)
	t.Run("EmptyID", suite.testEmptyID)
}

func (suite *StoreTestSuite) testReadContentNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.ReadContent(testContext(), objectID("missing"))
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testGetContentSizeNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetContentSize(testContext(), objectID("missing"))
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testContentExistsMissing(t *testing.T) {
	store := suite.NewStore(t)

	requireExists(t, store, objectID("missing"), false)
}

func (suite *StoreTestSuite) testReadAtBasic(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("readat-basic")
	put(t, writable, id, []byte("Hello, World!"))

	buf := make([]byte, 5)
	n, err := store.ReadAt(testContext(), id, buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("World"), buf)
}

func (suite *StoreTestSuite) testReadAtPastEnd(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("readat-pastend")
	put(t, writable, id, []byte("Hello"))

	// short read at the end
	buf := make([]byte, 10)
	n, err := store.ReadAt(testContext(), id, buf, 2)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("llo"), buf[:n])

	// nothing past the end
	n, err = store.ReadAt(testContext(), id, buf, 100)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func (suite *StoreTestSuite) testReadAtNegativeOffset(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.ReadAt(testContext(), objectID("readat-negative"), make([]byte, 1), -1)
	assert.ErrorIs(t, err, content.ErrInvalidOffset)
}

func (suite *StoreTestSuite) testReadAtEmptyContent(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("readat-empty")
	put(t, writable, id, nil)
	requireExists(t, store, id, true)
	checkSize(t, store, id, 0)

	n, err := store.ReadAt(testContext(), id, make([]byte, 4), 0)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
	checkContent(t, store, id, []byte{})
}

func (suite *StoreTestSuite) testEmptyID(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetContentSize(testContext(), "")
	assert.ErrorIs(t, err, content.ErrInvalidContentID)
}
