package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittovault/pkg/content"
)

// StoreTestSuite is a test suite for ContentStore implementations.
// It tests the interface contract, not implementation details.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &storetest.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.ContentStore {
//	            return newStore(t)
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty ContentStore for each test. Cleanup
	// is registered on t.
	NewStore func(t *testing.T) content.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("SeekableOperations", suite.RunSeekableTests)
	t.Run("GarbageCollection", suite.RunGCTests)
	t.Run("Statistics", suite.RunStatsTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
