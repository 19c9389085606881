package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/series"
	"agribot/internal/session"
	"agribot/internal/worker"
)

type liveRun struct {
	scheduler *worker.Scheduler
	cancel    context.CancelFunc
	view      series.ViewConfig
}

// Live repeats the cycle of sessions in live mode at a fixed interval.
// Each session has at most one live run.
type Live struct {
	cycle    *Cycle
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[string]*liveRun
}

// NewLive creates a live-mode manager polling every interval
func NewLive(cycle *Cycle, interval time.Duration) *Live {
	ctx, cancel := context.WithCancel(context.Background())
	return &Live{
		cycle:    cycle,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*liveRun),
	}
}

// ErrLiveClosed is returned by Start after Close
var ErrLiveClosed = errors.New("live mode shut down")

// Start begins live cycles for sess, replacing a run already in progress.
// The view is forced into live mode. A deleted session is rejected with
// session.ErrClosed; the check and the insert share the lock Stop takes, so
// a delete that stops the session never leaves a run behind.
func (l *Live) Start(sess *session.State, view series.ViewConfig) error {
	view.Live = true
	if err := view.Validate(); err != nil {
		return err
	}

	log := logger.WithSession("live", sess.ID, sess.UserID)
	task := func(ctx context.Context) error {
		_, err := l.cycle.Run(ctx, sess, view)
		return err
	}

	ctx, cancel := context.WithCancel(l.ctx)
	run := &liveRun{
		scheduler: worker.NewScheduler("live-"+sess.ID, l.interval, task),
		cancel:    cancel,
		view:      view,
	}

	l.mu.Lock()
	switch {
	case l.ctx.Err() != nil:
		l.mu.Unlock()
		cancel()
		return ErrLiveClosed
	case sess.Closed():
		l.mu.Unlock()
		cancel()
		return session.ErrClosed
	}
	old, replaced := l.runs[sess.ID]
	l.runs[sess.ID] = run
	l.mu.Unlock()

	if replaced {
		halt(old)
	} else {
		metrics.LiveSessions.Inc()
	}

	go func() {
		if err := run.scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("live scheduler failed to start")
		}
	}()

	log.Info().
		Dur("interval", l.interval).
		Int("resample_seconds", view.ResampleSeconds).
		Bool("replaced", replaced).
		Msg("live mode started")
	return nil
}

// Stop ends the live run of a session and waits for its in-flight cycle.
// It reports whether a run was active.
func (l *Live) Stop(sessionID string) bool {
	l.mu.Lock()
	run, ok := l.runs[sessionID]
	delete(l.runs, sessionID)
	l.mu.Unlock()
	if !ok {
		return false
	}

	halt(run)
	metrics.LiveSessions.Dec()

	log := logger.WithComponent("live")
	log.Info().Str("session_id", sessionID).Msg("live mode stopped")
	return true
}

// halt stops a run removed from the map and waits for it to exit
func halt(run *liveRun) {
	run.scheduler.Stop()
	run.cancel()
	<-run.scheduler.Done()
}

// View returns the view of a running live session
func (l *Live) View(sessionID string) (series.ViewConfig, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[sessionID]
	if !ok {
		return series.ViewConfig{}, false
	}
	return run.view, true
}

// Len returns the number of live sessions
func (l *Live) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}

// Close stops every live run. Start fails once Close has begun.
func (l *Live) Close() {
	l.mu.Lock()
	l.cancel()
	ids := make([]string, 0, len(l.runs))
	for id := range l.runs {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.Stop(id)
	}
}
