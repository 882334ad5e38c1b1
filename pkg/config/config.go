package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittovault/pkg/vault"
)

// Config represents the complete DittoVault configuration.
//
// This structure captures all configurable aspects of DittoVault:
//   - Logging configuration
//   - Server-wide settings
//   - Vault limits (file handles, mapped address space, sweeping)
//   - Content store selection and configuration (store-specific)
//   - Metrics export
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOVAULT_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct carries type-specific sections (e.g., content.filesystem) and only
// the section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Vault bounds the OS resources held for content files
	Vault VaultConfig `mapstructure:"vault" yaml:"vault"`

	// Content specifies the content store type and type-specific configuration
	Content ContentConfig `mapstructure:"content" yaml:"content"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// VaultConfig bounds the resources of the vault.
//
// Zero limits are replaced by values derived from the process rlimits.
type VaultConfig struct {
	File  FileConfig  `mapstructure:"file" yaml:"file"`
	Mmap  MmapConfig  `mapstructure:"mmap" yaml:"mmap"`
	Sweep SweepConfig `mapstructure:"sweep" yaml:"sweep"`
}

// FileConfig bounds OS file descriptors.
type FileConfig struct {
	// MaxHandles is the file handle quota (vault.file.max_handles)
	MaxHandles int `mapstructure:"max_handles" yaml:"max_handles" validate:"gte=0"`
}

// MmapConfig bounds mapped address space.
type MmapConfig struct {
	// AsLimit is the total address space mappings may use (vault.mmap.as_limit)
	AsLimit int64 `mapstructure:"as_limit" yaml:"as_limit" validate:"gte=0"`

	// WindowSize is the default size of a writable window (vault.mmap.window_size)
	WindowSize int64 `mapstructure:"window_size" yaml:"window_size" validate:"gte=0"`
}

// SweepConfig controls the background release of idle resources.
type SweepConfig struct {
	// Interval between sweeps; 0 disables sweeping
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`

	// MaxIdle is how long a handle or window may stay unused
	MaxIdle time.Duration `mapstructure:"max_idle" yaml:"max_idle" validate:"gte=0"`
}

// Options converts the limits to a vault.Config.
func (c VaultConfig) Options() vault.Config {
	return vault.Config{
		MaxHandles: c.File.MaxHandles,
		AsLimit:    c.Mmap.AsLimit,
		WindowSize: c.Mmap.WindowSize,
	}
}

// ContentConfig specifies content store configuration.
//
// The Type field determines which store implementation is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on metric collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOVAULT_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTOVAULT_ prefix and underscores
	// Example: DITTOVAULT_VAULT_FILE_MAX_HANDLES=256
	v.SetEnvPrefix("DITTOVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper knows about
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittovault/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittovault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittovault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
