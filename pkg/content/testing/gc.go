package testing

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// RunGCTests executes all GarbageCollectableStore tests.
func (suite *StoreTestSuite) RunGCTests(t *testing.T) {
	t.Run("ListAllContent_Empty", suite.testListAllContentEmpty)
	t.Run("ListAllContent", suite.testListAllContent)
	t.Run("DeleteBatch", suite.testDeleteBatch)
	t.Run("DeleteBatch_Cancelled", suite.testDeleteBatchCancelled)
}

func (suite *StoreTestSuite) testListAllContentEmpty(t *testing.T) {
	store := suite.NewStore(t)
	gc, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	ids, err := gc.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testListAllContent(t *testing.T) {
	store := suite.NewStore(t)
	gc, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	want := []content.ContentID{
		objectID("a"),
		objectID("b/with/slashes"),
		objectID("c"),
	}
	for _, id := range want {
		put(t, gc, id, []byte(id))
	}

	ids, err := gc.ListAllContent(testContext())
	require.NoError(t, err)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, want, ids)
}

func (suite *StoreTestSuite) testDeleteBatch(t *testing.T) {
	store := suite.NewStore(t)
	gc, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	keep := objectID("keep")
	put(t, gc, keep, []byte("keep"))

	var victims []content.ContentID
	for _, name := range []string{"x", "y", "z"} {
		id := objectID(name)
		put(t, gc, id, []byte(name))
		victims = append(victims, id)
	}
	// missing IDs are not failures
	victims = append(victims, objectID("never-written"))

	failures, err := gc.DeleteBatch(testContext(), victims)
	require.NoError(t, err)
	assert.Empty(t, failures)

	ids, err := gc.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Equal(t, []content.ContentID{keep}, ids)
}

func (suite *StoreTestSuite) testDeleteBatchCancelled(t *testing.T) {
	store := suite.NewStore(t)
	gc, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	ids := []content.ContentID{objectID("1"), objectID("2")}
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	failures, err := gc.DeleteBatch(ctx, ids)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, failures, len(ids))
}
