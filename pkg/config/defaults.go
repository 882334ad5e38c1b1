package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	contentfs "github.com/marmos91/dittovault/pkg/content/fs"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultSweepInterval   = 30 * time.Second
	defaultSweepMaxIdle    = 2 * time.Minute
	defaultMetricsPort     = 9090
	defaultContentPath     = "/tmp/dittovault-content"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Vault limits stay 0 ("derive from rlimits"); see VaultConfig.Resolve
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applySweepDefaults(&cfg.Vault.Sweep)
	applyContentDefaults(&cfg.Content)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
}

// applySweepDefaults leaves Interval alone: 0 disables sweeping. The
// default interval comes from registerDefaults and GetDefaultConfig.
func applySweepDefaults(cfg *SweepConfig) {
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = defaultSweepMaxIdle
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = defaultContentPath
	}
	if _, ok := cfg.Filesystem["chunk_size"]; !ok {
		cfg.Filesystem["chunk_size"] = int64(contentfs.DefaultChunkSize)
	}
	if _, ok := cfg.Filesystem["max_open_files"]; !ok {
		cfg.Filesystem["max_open_files"] = contentfs.DefaultMaxOpenFiles
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultMetricsPort
	}
}

// Resolve replaces zero limits with the values the vault derives from the
// process rlimits, so the effective limits can be shown.
func (c *VaultConfig) Resolve() {
	opts := c.Options()
	opts.ApplyDefaults()
	c.File.MaxHandles = opts.MaxHandles
	c.Mmap.AsLimit = opts.AsLimit
	c.Mmap.WindowSize = opts.WindowSize
}

// registerDefaults makes every key known to viper so that environment
// variables are picked up even when the config file omits the key.
func registerDefaults(v *viper.Viper) {
	def := GetDefaultConfig()

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("vault.file.max_handles", def.Vault.File.MaxHandles)
	v.SetDefault("vault.mmap.as_limit", def.Vault.Mmap.AsLimit)
	v.SetDefault("vault.mmap.window_size", def.Vault.Mmap.WindowSize)
	v.SetDefault("vault.sweep.interval", def.Vault.Sweep.Interval)
	v.SetDefault("vault.sweep.max_idle", def.Vault.Sweep.MaxIdle)
	v.SetDefault("content.type", def.Content.Type)
	for key, value := range def.Content.Filesystem {
		v.SetDefault("content.filesystem."+key, value)
	}
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.port", def.Metrics.Port)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Vault: VaultConfig{
			Sweep: SweepConfig{Interval: defaultSweepInterval},
		},
		Content: ContentConfig{
			Filesystem: make(map[string]any),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
