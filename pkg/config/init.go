package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoVault Configuration File
#
# Every value can be overridden with an environment variable named after its
# key, e.g. DITTOVAULT_VAULT_FILE_MAX_HANDLES=256 or DITTOVAULT_LOGGING_LEVEL=DEBUG.

`

// keyComments documents the generated configuration, keyed by dotted path.
var keyComments = map[string]string{
	"logging":        "Logging configuration",
	"logging.level":  "Minimum level: DEBUG, INFO, WARN, ERROR",
	"logging.format": "Output format: text or json",
	"logging.output": "Destination: stdout, stderr, or a file path",

	"server":                  "Process-wide settings",
	"server.shutdown_timeout": "Maximum time to wait for a graceful shutdown",

	"vault":                             "Bounds on the OS resources held for content files",
	"vault.file.max_handles":            "File handle quota; 0 derives it from RLIMIT_NOFILE",
	"vault.mmap.as_limit":               "Mapped address space in bytes; 0 derives it from RLIMIT_AS",
	"vault.mmap.window_size":            "Size of a writable mapping window in bytes; 0 picks a default",
	"vault.sweep.interval":              "How often idle handles and windows are released; 0 disables sweeping",
	"vault.sweep.max_idle":              "How long a handle or window may stay unused before a sweep releases it",
	"content":                           "Content store configuration",
	"content.type":                      "Store implementation: filesystem",
	"content.filesystem.path":           "Directory holding the content files",
	"content.filesystem.chunk_size":     "Mapping granularity in bytes (power of two, at least 4096)",
	"content.filesystem.max_open_files": "Content files kept open between operations",

	"metrics":         "Prometheus endpoint",
	"metrics.enabled": "Serve /metrics and /stats",
	"metrics.port":    "HTTP port of the endpoint",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file exists and force
// is false.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a default configuration file to configPath,
// creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each documented key.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	annotate(&root, "")

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// annotate attaches keyComments to the keys of a mapping node, recursively.
func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if comment, ok := keyComments[path]; ok {
			key.HeadComment = comment
		}
		annotate(value, path)
	}
}
