// Package scheduler runs the pull pipeline on a fixed interval and lets
// callers collapse the next run to now.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunFunc is one background pull run. Its error is logged, never raised.
type RunFunc func(ctx context.Context) error

// Scheduler fires a RunFunc on an interval. TriggerNow requests an
// immediate run; requests arriving while a run is in flight coalesce into
// a single follow-up run.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	log      *zap.Logger

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a Scheduler. interval must be positive.
func New(interval time.Duration, run RunFunc, log *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      run,
		log:      log,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The first run happens after one interval, not
// immediately; use TriggerNow for an eager first run.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.run(ctx); err != nil {
		s.log.Error("background sync failed", zap.Error(err))
		return
	}
	s.log.Debug("background sync completed",
		zap.Duration("elapsed", time.Since(start)))
}

// TriggerNow schedules an immediate run. Idempotent and non-blocking:
// if a trigger is already pending, this one folds into it.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop shuts the loop down and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
