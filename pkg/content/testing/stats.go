package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittovault/pkg/content"
)

// RunStatsTests executes the storage statistics tests.
func (suite *StoreTestSuite) RunStatsTests(t *testing.T) {
	t.Run("GetStorageStats_Empty", suite.testStorageStatsEmpty)
	t.Run("GetStorageStats_Usage", suite.testStorageStatsUsage)
}

func (suite *StoreTestSuite) testStorageStatsEmpty(t *testing.T) {
	store := suite.NewStore(t)

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Zero(t, stats.ContentCount)
	assert.Zero(t, stats.UsedSize)
	assert.Zero(t, stats.AverageSize)
}

func (suite *StoreTestSuite) testStorageStatsUsage(t *testing.T) {
	store := suite.NewStore(t)
	writable, ok := store.(content.WritableContentStore)
	if !ok {
		t.Skip("Store does not implement WritableContentStore")
	}

	put(t, writable, objectID("s1"), patterned(100))
	put(t, writable, objectID("s2"), patterned(300))

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ContentCount)
	assert.Equal(t, uint64(400), stats.UsedSize, "logical sizes, not chunk padding")
	assert.Equal(t, uint64(200), stats.AverageSize)
	assert.LessOrEqual(t, stats.AvailableSize, stats.TotalSize)
}
