package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittovault/pkg/content"
	contentfs "github.com/marmos91/dittovault/pkg/content/fs"
	"github.com/marmos91/dittovault/pkg/vault"
)

// CreateVault creates the vault that owns every file handle and mapping of
// the process.
//
// Parameters:
//   - cfg: Vault configuration (zero limits derive from rlimits)
//   - metrics: Optional metrics sink (nil disables collection)
func CreateVault(cfg *VaultConfig, metrics vault.Metrics) (*vault.Vault, error) {
	v, err := vault.New(cfg.Options(), vault.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}
	return v, nil
}

// CreateContentStore creates a content store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/content/fs (files mapped through the vault)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Content store configuration
//   - v: Vault the store opens its files through
//   - metrics: Optional metrics sink (nil disables collection)
//
// Returns:
//   - content.GarbageCollectableStore: Initialized content store
//   - error: Configuration or initialization error
func CreateContentStore(
	ctx context.Context,
	cfg *ContentConfig,
	v *vault.Vault,
	metrics content.Metrics,
) (content.GarbageCollectableStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem, v, metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(
	ctx context.Context,
	options map[string]any,
	v *vault.Vault,
	metrics content.Metrics,
) (content.GarbageCollectableStore, error) {
	storeCfg, err := decodeFilesystemOptions(options)
	if err != nil {
		return nil, fmt.Errorf("filesystem content store: %w", err)
	}

	store, err := contentfs.NewFSContentStore(ctx, v, *storeCfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	return store, nil
}

// decodeFilesystemOptions decodes and validates the content.filesystem map.
//
// Values coming from environment variables arrive as strings, so the decoder
// accepts weakly typed input.
func decodeFilesystemOptions(options map[string]any) (*contentfs.FSContentStoreConfig, error) {
	var storeCfg contentfs.FSContentStoreConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &storeCfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(&storeCfg); err != nil {
		return nil, formatValidationError(err)
	}
	if storeCfg.ChunkSize != 0 && storeCfg.ChunkSize&(storeCfg.ChunkSize-1) != 0 {
		return nil, fmt.Errorf("chunk_size %d is not a power of two", storeCfg.ChunkSize)
	}

	storeCfg.ApplyDefaults()
	return &storeCfg, nil
}
