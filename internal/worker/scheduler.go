package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"agribot/internal/logger"
	"agribot/internal/metrics"
)

// ErrSchedulerRunning is returned when Run is called twice
var ErrSchedulerRunning = errors.New("scheduler already running")

// Task is one synchronous cycle run by a Scheduler
type Task func(ctx context.Context) error

// Scheduler runs a Task at a fixed interval on a single goroutine. Cycles
// never overlap; Stop takes effect between cycles.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	log      zerolog.Logger

	running atomic.Bool
	stopped atomic.Bool
	done    chan struct{}

	// Metrics
	cycles atomic.Uint64
	failed atomic.Uint64
}

// NewScheduler creates a scheduler running task every interval
func NewScheduler(name string, interval time.Duration, task Task) *Scheduler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		log:      logger.WithComponent("scheduler").With().Str("scheduler", name).Logger(),
		done:     make(chan struct{}),
	}
}

// Run executes cycles until ctx is cancelled or Stop is called. The first
// cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSchedulerRunning
	}
	defer close(s.done)

	s.log.Debug().Dur("interval", s.interval).Msg("scheduler started")
	defer s.log.Debug().Uint64("cycles", s.cycles.Load()).Msg("scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce runs one cycle, recovering from panics
func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("scheduled task panic recovered")
			metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
		}
	}()

	s.cycles.Add(1)
	if err := s.task(ctx); err != nil {
		s.failed.Add(1)
		s.log.Warn().Err(err).Msg("scheduled task failed")
	}
}

// Stop asks the scheduler to exit before its next cycle
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Done is closed once Run has returned
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	failed := s.failed.Load()
	return Stats{
		Processed: s.cycles.Load() - failed,
		Failed:    failed,
	}
}
