package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// mutation is one step applied both to a store and to an in-memory model
// of the object.
type mutation struct {
	kind   string // "replace", "at" or "truncate"
	data   []byte
	offset int64
	size   uint64
}

func replace(data []byte) mutation          { return mutation{kind: "replace", data: data} }
func at(offset int64, data []byte) mutation { return mutation{kind: "at", data: data, offset: offset} }
func truncateTo(size uint64) mutation       { return mutation{kind: "truncate", size: size} }

func (m mutation) String() string {
	switch m.kind {
	case "at":
		return fmt.Sprintf("WriteAt(%d, %d bytes)", m.offset, len(m.data))
	case "truncate":
		return fmt.Sprintf("Truncate(%d)", m.size)
	default:
		return fmt.Sprintf("WriteContent(%d bytes)", len(m.data))
	}
}

func (m mutation) apply(t *testing.T, store content.WritableContentStore, id content.ContentID) {
	t.Helper()
	switch m.kind {
	case "at":
		putAt(t, store, id, m.data, m.offset)
	case "truncate":
		resize(t, store, id, m.size)
	default:
		put(t, store, id, m.data)
	}
}

// model returns what the object holds after m.
func (m mutation) model(cur []byte) []byte {
	switch m.kind {
	case "at":
		end := m.offset + int64(len(m.data))
		if end > int64(len(cur)) {
			cur = append(cur, make([]byte, end-int64(len(cur)))...)
		}
		copy(cur[m.offset:], m.data)
		return cur
	case "truncate":
		if m.size <= uint64(len(cur)) {
			return cur[:m.size]
		}
		return append(cur, make([]byte, m.size-uint64(len(cur)))...)
	default:
		return append([]byte(nil), m.data...)
	}
}

// RunWriteTests executes all WritableContentStore operation tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	const chunkish = 64 << 10
	pattern := patterned(3*chunkish + 17)

	cases := []struct {
		name  string
		steps []mutation
	}{
		{"Replace", []mutation{replace([]byte("Hello, World!"))}},
		{"ReplaceLonger", []mutation{replace([]byte("Old data")), replace([]byte("New data that is longer"))}},
		{"ReplaceShorter", []mutation{replace(pattern), replace([]byte("tiny"))}},
		{"ReplaceEmpty", []mutation{replace([]byte("gone")), replace(nil)}},
		{"AtCreates", []mutation{at(0, []byte("Created via WriteAt"))}},
		{"AtAppends", []mutation{replace([]byte("Hello")), at(5, []byte(", World"))}},
		{"AtOverwritesMiddle", []mutation{replace([]byte("Hello, World")), at(7, []byte("Vault"))}},
		{"AtLeavesZeroGap", []mutation{at(100, []byte("Data"))}},
		{"AtCrossesChunks", []mutation{at(chunkish-3, []byte("straddle"))}},
		{"AtFarGap", []mutation{at(0, []byte("head")), at(2*chunkish+5, []byte("tail"))}},
		{"AtLarge", []mutation{at(12345, patterned(200000))}},
		{"TruncateShrink", []mutation{replace([]byte("Hello, World!")), truncateTo(5)}},
		{"TruncateGrow", []mutation{replace([]byte("Hello")), truncateTo(10)}},
		{"TruncateAcrossChunks", []mutation{replace(pattern), truncateTo(chunkish + 1), at(chunkish, []byte("xy"))}},
		{"TruncateToZeroThenWrite", []mutation{replace(pattern), truncateTo(0), at(3, []byte("abc"))}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := suite.NewStore(t)
			writable, ok := store.(content.WritableContentStore)
			if !ok {
				t.Skip("Store does not implement WritableContentStore")
			}

			id := objectID("write-" + tc.name)
			var want []byte
			for _, step := range tc.steps {
				step.apply(t, writable, id)
				want = step.model(want)

				size := sizeOf(t, store, id)
				require.Equal(t, uint64(len(want)), size, "size after %s", step)
			}

			got := readAll(t, store, id)
			if !bytes.Equal(want, got) {
				assert.Failf(t, "content mismatch", "want %d bytes, got %d bytes", len(want), len(got))
			}
		})
	}

	t.Run("WriteAt_NegativeOffset", suite.testWriteAtNegativeOffset)
	t.Run("Truncate_NotFound", suite.testTruncateNotFound)
	t.Run("Delete", suite.testDelete)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Sync", suite.testSync)
}

func (suite *StoreTestSuite) writable(t *testing.T) content.WritableContentStore {
	t.Helper()
	writable, ok := suite.NewStore(t).(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}
	return writable
}

func (suite *StoreTestSuite) testWriteAtNegativeOffset(t *testing.T) {
	writable := suite.writable(t)

	err := writable.WriteAt(testContext(), objectID("negative"), []byte("data"), -1)
	assert.ErrorIs(t, err, content.ErrInvalidOffset)
}

func (suite *StoreTestSuite) testTruncateNotFound(t *testing.T) {
	writable := suite.writable(t)

	err := writable.Truncate(testContext(), objectID("truncate-missing"), 100)
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	writable := suite.writable(t)
	id := objectID("delete")

	put(t, writable, id, []byte("To be deleted"))
	remove(t, writable, id)
	requireExists(t, writable, id, false)

	_, err := writable.ReadContent(testContext(), id)
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	// the id can be reused
	putAt(t, writable, id, []byte("again"), 0)
	checkContent(t, writable, id, []byte("again"))
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	writable := suite.writable(t)
	id := objectID("delete-missing")

	require.NoError(t, writable.Delete(testContext(), id))
	require.NoError(t, writable.Delete(testContext(), id))
}

func (suite *StoreTestSuite) testSync(t *testing.T) {
	writable := suite.writable(t)
	id := objectID("sync")

	put(t, writable, id, []byte("durable"))
	require.NoError(t, writable.Sync(testContext(), id))

	err := writable.Sync(testContext(), objectID("sync-missing"))
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}
