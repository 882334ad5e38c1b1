// Package metrics exports vault and content store activity to Prometheus.
//
// Metrics are off until InitRegistry is called. Before that the
// constructors return nil, which the vault and the content store treat as
// "drop every event".
//
//	metrics.InitRegistry()
//	v, err := vault.New(cfg, vault.WithMetrics(metrics.NewVaultMetrics()))
//	err = metrics.RegisterVaultStats(v.Stats)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry. Later calls are no-ops.
//
// Besides the vault series the registry carries the process collector:
// process_open_fds and process_virtual_memory_bytes are the numbers the
// handle quota and the address space limit are enforced against.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
