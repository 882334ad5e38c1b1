package testing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittovault/pkg/content"
)

// RunConcurrencyTests checks that independent writers and readers do not
// interfere.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("DisjointWriters", suite.testDisjointWriters)
	t.Run("ManyObjects", suite.testManyObjects)
}

func (suite *StoreTestSuite) testDisjointWriters(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	id := objectID("disjoint")
	const (
		writers = 8
		block   = 1000
	)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			data := make([]byte, block)
			for i := range data {
				data[i] = byte(w + 1)
			}
			return writable.WriteAt(testContext(), id, data, int64(w*block))
		})
	}
	require.NoError(t, g.Wait())

	checkSize(t, store, id, writers*block)
	data := readAll(t, store, id)
	for w := 0; w < writers; w++ {
		for i := 0; i < block; i++ {
			if data[w*block+i] != byte(w+1) {
				t.Fatalf("byte %d: got %d, want %d", w*block+i, data[w*block+i], w+1)
			}
		}
	}
}

func (suite *StoreTestSuite) testManyObjects(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	const objects = 64
	var g errgroup.Group
	g.SetLimit(8)
	for i := 0; i < objects; i++ {
		i := i
		g.Go(func() error {
			id := objectID(fmt.Sprintf("many-%d", i))
			if err := writable.WriteContent(testContext(), id, []byte(id)); err != nil {
				return err
			}
			buf := make([]byte, len(id))
			if _, err := store.ReadAt(testContext(), id, buf, 0); err != nil {
				return err
			}
			if string(buf) != string(id) {
				return fmt.Errorf("object %s read back %q", id, buf)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(objects), stats.ContentCount)
}
