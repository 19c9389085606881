package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agribot/internal/alerts"
	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/models"
	"agribot/internal/notify"
	"agribot/internal/series"
	"agribot/internal/session"
	"agribot/internal/store"
	"agribot/internal/websocket"
)

// ErrFetch wraps reading store failures
var ErrFetch = errors.New("snapshot fetch failed")

// Pusher delivers a message to the viewers of a session
type Pusher interface {
	Send(sessionID, msgType string, payload any) bool
}

// Config holds cycle dependencies
type Config struct {
	Store     store.ReadingStore
	Engine    *alerts.Engine
	Processor *series.Processor
	Sink      notify.Sink
	// Receives the chart of live cycles; optional
	Pusher Pusher
	// Bounds the snapshot fetch; zero means no bound
	FetchTimeout time.Duration
	// Store backend name used as metric label
	Backend string
}

// Cycle runs one render cycle of a session: fetch the snapshot, evaluate
// alerts, toast new notifications, then build the chart series.
type Cycle struct {
	store        store.ReadingStore
	engine       *alerts.Engine
	processor    *series.Processor
	sink         notify.Sink
	pusher       Pusher
	fetchTimeout time.Duration
	backend      string
}

// Outcome is what one cycle produced
type Outcome struct {
	Events []models.NotificationEvent
	Result series.Result

	// Deadbanded is set when the alert rules were not evaluated because the
	// previous evaluation is too recent
	Deadbanded bool
}

// NewCycle creates a cycle runner
func NewCycle(cfg Config) *Cycle {
	if cfg.Sink == nil {
		cfg.Sink = notify.Multi(nil)
	}
	if cfg.Backend == "" {
		cfg.Backend = "unknown"
	}
	return &Cycle{
		store:        cfg.Store,
		engine:       cfg.Engine,
		processor:    cfg.Processor,
		sink:         cfg.Sink,
		pusher:       cfg.Pusher,
		fetchTimeout: cfg.FetchTimeout,
		backend:      cfg.Backend,
	}
}

// Run executes one cycle for sess. A fetch failure or a malformed reading
// aborts the cycle before any state changes.
func (c *Cycle) Run(ctx context.Context, sess *session.State, view series.ViewConfig) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	if err := view.Validate(); err != nil {
		metrics.CyclesTotal.WithLabelValues("invalid").Inc()
		return Outcome{}, err
	}

	snap, err := c.fetch(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, models.ErrMalformedReading) {
			metrics.CyclesTotal.WithLabelValues("malformed").Inc()
		} else {
			metrics.CyclesTotal.WithLabelValues("fetch_error").Inc()
			metrics.StoreFetchErrors.WithLabelValues(c.backend).Inc()
		}
		return Outcome{}, err
	}
	metrics.SnapshotSize.Observe(float64(snap.Len()))

	var deadbanded bool
	events, err := sess.Evaluate(func(st alerts.State) ([]models.NotificationEvent, alerts.State, error) {
		evs, next, err := c.engine.Evaluate(snap, st)
		deadbanded = err == nil && snap.Len() > 0 && !st.LastEvaluation.IsZero() && next.LastEvaluation.Equal(st.LastEvaluation)
		return evs, next, err
	})
	switch {
	case errors.Is(err, session.ErrClosed):
		metrics.CyclesTotal.WithLabelValues("closed").Inc()
		return Outcome{}, err
	case err != nil:
		metrics.CyclesTotal.WithLabelValues("malformed").Inc()
		return Outcome{}, err
	}
	if deadbanded {
		metrics.AlertEvaluationsSkipped.Inc()
	}
	for i := range events {
		ev := events[i]
		metrics.NotificationsTotal.WithLabelValues(string(ev.Category), string(ev.Transition)).Inc()
		c.sink.Toast(models.NewEnvelope(&ev, sess.ID, sess.UserID))
	}

	result, err := c.processor.Process(snap, view)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("malformed").Inc()
		return Outcome{Events: events, Deadbanded: deadbanded}, err
	}
	metrics.SeriesResultsTotal.WithLabelValues(resultLabel(result)).Inc()

	if view.Live && c.pusher != nil {
		if !c.pusher.Send(sess.ID, websocket.TypeSeries, result) {
			metrics.ToastsDropped.WithLabelValues("series").Inc()
		}
	}

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	return Outcome{Events: events, Result: result, Deadbanded: deadbanded}, nil
}

// Snapshot fetches the current readings of a user with the cycle's
// fetch timeout
func (c *Cycle) Snapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	snap, err := c.fetch(ctx, userID)
	if err != nil && errors.Is(err, ErrFetch) {
		metrics.StoreFetchErrors.WithLabelValues(c.backend).Inc()
	}
	return snap, err
}

func (c *Cycle) fetch(ctx context.Context, userID string) (models.Snapshot, error) {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	snap, err := c.store.Snapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrMalformedReading) {
			return models.Snapshot{}, err
		}
		log := logger.WithComponent("dashboard")
		log.Warn().Err(err).Str("user_id", userID).Str("backend", c.backend).Msg("snapshot fetch failed")
		return models.Snapshot{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return snap, nil
}

func resultLabel(r series.Result) string {
	if r.Empty == nil {
		return "series"
	}
	switch r.Empty.Kind {
	case series.EmptyNoData:
		return "no_data"
	case series.EmptyNoVariables:
		return "no_variables"
	case series.EmptyNoDataFetched:
		return "no_data_fetched"
	case series.EmptyRangeTooWide:
		return "range_too_wide"
	default:
		return "insufficient"
	}
}
