package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittovault/pkg/content"
)

// contentMetrics is the Prometheus implementation of the content.Metrics interface.
//
// This implementation collects metrics about content store operations including:
//   - Read/write operation counts and latencies
//   - Throughput in bytes
//   - The number of content files held open
type contentMetrics struct {
	readOperations   *prometheus.CounterVec
	readDuration     prometheus.Histogram
	readBytes        prometheus.Counter
	writeOperations  *prometheus.CounterVec
	writeDuration    prometheus.Histogram
	writeBytes       prometheus.Counter
	deleteOperations *prometheus.CounterVec
	openFiles        prometheus.Gauge
}

// ioBuckets spans a page copy out of a warm window up to a cold
// mapping of a large range.
var ioBuckets = []float64{
	0.00001, // 10µs
	0.00005, // 50µs
	0.0001,  // 100µs
	0.0005,  // 500µs
	0.001,   // 1ms
	0.005,   // 5ms
	0.01,    // 10ms
	0.05,    // 50ms
	0.1,     // 100ms
	0.5,     // 500ms
}

// NewContentMetrics creates a new Prometheus-backed content.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the store to use content.NoopMetrics.
func NewContentMetrics() content.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newContentMetrics(GetRegistry())
}

func newContentMetrics(reg prometheus.Registerer) *contentMetrics {
	return &contentMetrics{
		readOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_content_read_operations_total",
				Help: "Total number of content read operations",
			},
			[]string{"status"},
		),
		readDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittovault_content_read_duration_seconds",
				Help:    "Duration of content read operations in seconds",
				Buckets: ioBuckets,
			},
		),
		readBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittovault_content_read_bytes_total",
				Help: "Total bytes read from content files",
			},
		),
		writeOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_content_write_operations_total",
				Help: "Total number of content write operations",
			},
			[]string{"status"},
		),
		writeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittovault_content_write_duration_seconds",
				Help:    "Duration of content write operations in seconds",
				Buckets: ioBuckets,
			},
		),
		writeBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittovault_content_write_bytes_total",
				Help: "Total bytes written to content files",
			},
		),
		deleteOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_content_delete_operations_total",
				Help: "Total number of content delete operations",
			},
			[]string{"status"},
		),
		openFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittovault_content_open_files",
				Help: "Content files currently held open by the store",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveRead implements content.Metrics.ObserveRead
func (m *contentMetrics) ObserveRead(bytes int64, duration time.Duration, err error) {
	m.readOperations.WithLabelValues(status(err)).Inc()
	m.readDuration.Observe(duration.Seconds())
	m.readBytes.Add(float64(bytes))
}

// ObserveWrite implements content.Metrics.ObserveWrite
func (m *contentMetrics) ObserveWrite(bytes int64, duration time.Duration, err error) {
	m.writeOperations.WithLabelValues(status(err)).Inc()
	m.writeDuration.Observe(duration.Seconds())
	m.writeBytes.Add(float64(bytes))
}

// ObserveDelete implements content.Metrics.ObserveDelete
func (m *contentMetrics) ObserveDelete(err error) {
	m.deleteOperations.WithLabelValues(status(err)).Inc()
}

// RecordOpenFiles implements content.Metrics.RecordOpenFiles
func (m *contentMetrics) RecordOpenFiles(count int) {
	m.openFiles.Set(float64(count))
}
