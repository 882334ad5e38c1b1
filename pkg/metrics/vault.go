package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittovault/pkg/vault"
	"github.com/marmos91/dittovault/pkg/vault/resource"
)

// vaultMetrics is the Prometheus implementation of the vault.Metrics interface.
//
// It counts the events of the resource layer:
//   - collector escalations per resource kind and level
//   - file handle acquisitions and quota overruns
//   - mmap attempts per recovery strategy
//   - idle windows evicted by the mmap cache
//
// Gauges for the current cache state are exported separately through
// RegisterVaultStats, which samples vault.Stats at scrape time.
type vaultMetrics struct {
	escalations     *prometheus.CounterVec
	handleAcquires  *prometheus.CounterVec
	overallocations prometheus.Counter
	mmapAttempts    *prometheus.CounterVec
	mmapEvictions   prometheus.Counter
}

// NewVaultMetrics creates a new Prometheus-backed vault.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes vault.WithMetrics keep the built-in no-op implementation.
func NewVaultMetrics() vault.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newVaultMetrics(GetRegistry())
}

func newVaultMetrics(reg prometheus.Registerer) *vaultMetrics {
	return &vaultMetrics{
		escalations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_collector_escalations_total",
				Help: "Resource collector runs by resource kind, escalation level and result",
			},
			[]string{"kind", "level", "result"},
		),
		handleAcquires: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_handle_acquires_total",
				Help: "File handles handed to descriptors, by source (new or reused)",
			},
			[]string{"source"},
		),
		overallocations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittovault_handle_overallocations_total",
				Help: "File handles allocated beyond the configured quota",
			},
		),
		mmapAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_mmap_attempts_total",
				Help: "Mmap attempts by recovery strategy and result",
			},
			[]string{"strategy", "result"},
		),
		mmapEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittovault_mmap_evictions_total",
				Help: "Idle mmap windows unmapped by the cache",
			},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *vaultMetrics) ObserveEscalation(kind resource.Kind, try resource.Try, satisfied bool) {
	m.escalations.WithLabelValues(kind.String(), try.String(), result(satisfied)).Inc()
}

func (m *vaultMetrics) ObserveHandleAcquire(reused bool) {
	source := "new"
	if reused {
		source = "reused"
	}
	m.handleAcquires.WithLabelValues(source).Inc()
}

func (m *vaultMetrics) ObserveHandleOverallocation() {
	m.overallocations.Inc()
}

func (m *vaultMetrics) ObserveMmapAttempt(strategy string, ok bool) {
	m.mmapAttempts.WithLabelValues(strategy, result(ok)).Inc()
}

func (m *vaultMetrics) ObserveMmapEvictions(n int) {
	if n > 0 {
		m.mmapEvictions.Add(float64(n))
	}
}

// statsCollector exports a vault.Stats snapshot as gauges on every scrape.
type statsCollector struct {
	source func() vault.Stats

	handles     *prometheus.Desc
	handleQuota *prometheus.Desc
	mmapBytes   *prometheus.Desc
	mmapLimit   *prometheus.Desc
	windows     *prometheus.Desc
	descriptors *prometheus.Desc
	windowSize  *prometheus.Desc
}

func newStatsCollector(source func() vault.Stats) *statsCollector {
	return &statsCollector{
		source: source,
		handles: prometheus.NewDesc(
			"dittovault_handles",
			"Allocated file handles by state",
			[]string{"state"}, nil,
		),
		handleQuota: prometheus.NewDesc(
			"dittovault_handle_quota",
			"Configured file handle quota",
			nil, nil,
		),
		mmapBytes: prometheus.NewDesc(
			"dittovault_mmap_bytes",
			"Address space currently mapped",
			nil, nil,
		),
		mmapLimit: prometheus.NewDesc(
			"dittovault_mmap_limit_bytes",
			"Configured address space limit",
			nil, nil,
		),
		windows: prometheus.NewDesc(
			"dittovault_mmap_windows",
			"Mapped windows by state",
			[]string{"state"}, nil,
		),
		descriptors: prometheus.NewDesc(
			"dittovault_descriptors",
			"Open file descriptors in the registry",
			nil, nil,
		),
		windowSize: prometheus.NewDesc(
			"dittovault_window_size_bytes",
			"Current default mapping window",
			nil, nil,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handles
	ch <- c.handleQuota
	ch <- c.mmapBytes
	ch <- c.mmapLimit
	ch <- c.windows
	ch <- c.descriptors
	ch <- c.windowSize
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}
	gauge(c.handles, float64(s.Handles.CheckedOut), "checked_out")
	gauge(c.handles, float64(s.Handles.Idle), "idle")
	gauge(c.handleQuota, float64(s.Handles.Quota))
	gauge(c.mmapBytes, float64(s.Mmaps.Total))
	gauge(c.mmapLimit, float64(s.Mmaps.Limit))
	gauge(c.windows, float64(s.Mmaps.InUse), "in_use")
	gauge(c.windows, float64(s.Mmaps.Idle), "idle")
	gauge(c.descriptors, float64(s.Descriptors))
	gauge(c.windowSize, float64(s.WindowSize))
}

// RegisterVaultStats exports the state returned by source as gauges.
// It is a no-op when metrics are disabled.
func RegisterVaultStats(source func() vault.Stats) error {
	if !IsEnabled() {
		return nil
	}
	return registerVaultStats(GetRegistry(), source)
}

func registerVaultStats(reg prometheus.Registerer, source func() vault.Stats) error {
	return reg.Register(newStatsCollector(source))
}
