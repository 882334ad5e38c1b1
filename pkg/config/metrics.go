package config

import (
	"github.com/marmos91/dittovault/pkg/content"
	"github.com/marmos91/dittovault/pkg/metrics"
	"github.com/marmos91/dittovault/pkg/vault"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VaultMetrics is passed to CreateVault (nil if disabled)
	VaultMetrics vault.Metrics

	// ContentMetrics is passed to CreateContentStore (nil if disabled)
	ContentMetrics content.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled every field is nil and collection costs nothing.
//
// Parameters:
//   - cfg: The complete DittoVault configuration
//   - stats: Optional snapshot served as JSON on /stats
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config, stats func() any) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:  cfg.Metrics.Port,
		Stats: stats,
	})

	return &MetricsResult{
		Server:         server,
		VaultMetrics:   metrics.NewVaultMetrics(),
		ContentMetrics: metrics.NewContentMetrics(),
	}
}
