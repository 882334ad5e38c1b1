package content

import (
	"time"
)

// Metrics provides observability for content store operations.
//
// This is optional - stores fall back to NoopMetrics when none is provided.
// Implementations are called on the I/O path and must not block.
type Metrics interface {
	// ObserveRead records a read of bytes that took duration
	ObserveRead(bytes int64, duration time.Duration, err error)

	// ObserveWrite records a write of bytes that took duration
	ObserveWrite(bytes int64, duration time.Duration, err error)

	// ObserveDelete records a content deletion
	ObserveDelete(err error)

	// RecordOpenFiles records the number of content files held open
	RecordOpenFiles(count int)
}

// NoopMetrics drops every observation.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(int64, time.Duration, error)  {}
func (NoopMetrics) ObserveWrite(int64, time.Duration, error) {}
func (NoopMetrics) ObserveDelete(error)                      {}
func (NoopMetrics) RecordOpenFiles(int)                      {}
