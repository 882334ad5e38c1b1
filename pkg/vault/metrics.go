package vault

import "github.com/marmos91/dittovault/pkg/vault/resource"

// Metrics receives vault events. A prometheus implementation lives in
// pkg/metrics; without one all events are dropped.
//
// Implementations must be non-blocking: most methods are called with a
// cache lock held.
type Metrics interface {
	resource.Metrics

	// ObserveHandleAcquire records a handle handed to a descriptor. reused
	// is true when an idle handle of another descriptor was taken over.
	ObserveHandleAcquire(reused bool)

	// ObserveHandleOverallocation records a handle allocated beyond quota.
	ObserveHandleOverallocation()

	// ObserveMmapAttempt records one mmap attempt and the recovery strategy
	// that preceded it.
	ObserveMmapAttempt(strategy string, ok bool)

	// ObserveMmapEvictions records idle windows unmapped by the cache.
	ObserveMmapEvictions(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEscalation(resource.Kind, resource.Try, bool) {}
func (noopMetrics) ObserveHandleAcquire(bool)                           {}
func (noopMetrics) ObserveHandleOverallocation()                        {}
func (noopMetrics) ObserveMmapAttempt(string, bool)                     {}
func (noopMetrics) ObserveMmapEvictions(int)                            {}
