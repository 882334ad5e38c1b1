package fs

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/content"
)

// ListAllContent returns the IDs of all objects under the base directory.
//
// Names that are not hex encoded IDs are skipped, as are directories.
func (s *FSContentStore) ListAllContent(ctx context.Context) ([]content.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read content directory: %w", err)
	}

	ids := make([]content.ContentID, 0, len(entries))
	for i, entry := range entries {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if entry.IsDir() {
			continue
		}

		raw, err := hex.DecodeString(entry.Name())
		if err != nil || len(raw) == 0 {
			logger.Debug("Content store: skipping foreign file %s", entry.Name())
			continue
		}
		ids = append(ids, content.ContentID(raw))
	}
	return ids, nil
}

// DeleteBatch removes ids one by one. Failures are collected per ID; only
// cancellation fails the whole batch, marking the remaining IDs as failed.
func (s *FSContentStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	failures := make(map[content.ContentID]error)

	for i, id := range ids {
		if i%10 == 0 {
			if err := ctx.Err(); err != nil {
				for _, rest := range ids[i:] {
					failures[rest] = err
				}
				return failures, err
			}
		}

		if err := s.Delete(ctx, id); err != nil {
			failures[id] = err
		}
	}
	return failures, nil
}
