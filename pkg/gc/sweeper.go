// Package gc releases idle vault resources in the background.
//
// Handles and mapping windows stay cached after their last use so a later
// access can skip the open and mmap calls. Under steady load the resource
// collector reclaims them on demand; a process that goes quiet would keep
// them forever. The sweeper periodically trims everything that has been
// idle for longer than a configured age.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
)

// Trimmer releases idle resources. *vault.Vault implements it.
type Trimmer interface {
	Trim(maxIdle time.Duration) (handles, windows int)
}

// Sweeper periodically trims idle resources of a Trimmer.
//
// Thread Safety: Safe for concurrent use.
type Sweeper struct {
	target    Trimmer
	config    Config
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
}

// Config contains configuration for the sweeper.
type Config struct {
	// Interval is how often to sweep; 0 disables the background worker
	Interval time.Duration

	// MaxIdle is how long a handle or window may stay unused (default: 2m)
	MaxIdle time.Duration
}

// NewSweeper creates a sweeper for target.
//
// The sweeper is initialized but not started. Call Start() to begin
// background sweeping.
func NewSweeper(target Trimmer, config Config) (*Sweeper, error) {
	if target == nil {
		return nil, fmt.Errorf("sweeper: nil target")
	}
	if config.Interval < 0 || config.MaxIdle < 0 {
		return nil, fmt.Errorf("sweeper: negative interval or max idle")
	}
	if config.MaxIdle == 0 {
		config.MaxIdle = 2 * time.Minute
	}

	return &Sweeper{
		target: target,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins background sweeping.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (s *Sweeper) Start() {
	if s.config.Interval == 0 {
		logger.Info("Idle resource sweeping disabled")
		return
	}

	s.startOnce.Do(func() {
		logger.Info("Starting sweeper: interval=%s max_idle=%s", s.config.Interval, s.config.MaxIdle)
		s.started = true
		go s.worker()
	})
}

// Stop stops the sweeper and waits for the worker to exit. Safe to call
// multiple times.
//
// Returns ctx.Err() if the context expires before the worker exits.
func (s *Sweeper) Stop(ctx context.Context) error {
	var wait bool
	s.stopOnce.Do(func() {
		// startOnce has run or never will: block a late Start
		s.startOnce.Do(func() {})
		wait = s.started
		close(s.stopCh)
	})
	if !wait {
		return nil
	}

	logger.Info("Stopping sweeper...")

	select {
	case <-s.doneCh:
		logger.Info("Sweeper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow sweeps immediately and returns what was released.
func (s *Sweeper) RunNow(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.sweep(), nil
}

func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.sweep()
			if stats.Handles > 0 || stats.Windows > 0 {
				logger.Info("Sweep completed: %s", stats.Summary())
			}

		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() *Stats {
	stats := &Stats{StartTime: time.Now()}
	stats.Handles, stats.Windows = s.target.Trim(s.config.MaxIdle)
	stats.EndTime = time.Now()
	return stats
}

// Stats contains statistics from one sweep.
type Stats struct {
	StartTime time.Time // When the sweep started
	EndTime   time.Time // When the sweep ended
	Handles   int       // Idle file handles closed
	Windows   int       // Idle mapping windows unmapped
}

// Duration returns the sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	return fmt.Sprintf("handles=%d windows=%d duration=%s", s.Handles, s.Windows, s.Duration())
}
