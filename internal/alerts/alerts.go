package alerts

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"agribot/internal/models"
)

// Clock supplies the wall-clock instant used for deadband gating.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now
var SystemClock Clock = ClockFunc(time.Now)

// DefaultDeadband is the minimum interval between two rule evaluations
const DefaultDeadband = time.Second

// Rules holds the threshold rules of every condition family.
type Rules struct {
	CriticalWaterLevel float64
	LowWaterLevel      float64
	HumidityMin        float64
	HumidityMax        float64
	TemperatureMin     float64
	TemperatureMax     float64
}

// DefaultRules returns the greenhouse thresholds.
func DefaultRules() Rules {
	return Rules{
		CriticalWaterLevel: 10,
		LowWaterLevel:      40,
		HumidityMin:        0,
		HumidityMax:        50,
		TemperatureMin:     0,
		TemperatureMax:     30,
	}
}

// Config holds engine configuration
type Config struct {
	Rules    Rules
	Deadband time.Duration
	Clock    Clock
	// Location used to format timestamps; UTC when nil
	Location *time.Location
	// IDFunc generates event ids; uuid when nil
	IDFunc func() string
}

// Engine turns the latest reading of a snapshot into edge-triggered
// notification events.
type Engine struct {
	rules    Rules
	deadband time.Duration
	clock    Clock
	loc      *time.Location
	newID    func() string
}

// NewEngine creates a new alert engine
func NewEngine(cfg Config) *Engine {
	if cfg.Rules == (Rules{}) {
		cfg.Rules = DefaultRules()
	}
	if cfg.Deadband <= 0 {
		cfg.Deadband = DefaultDeadband
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = func() string { return uuid.New().String() }
	}

	return &Engine{
		rules:    cfg.Rules,
		deadband: cfg.Deadband,
		clock:    cfg.Clock,
		loc:      cfg.Location,
		newID:    cfg.IDFunc,
	}
}

// Evaluate runs one evaluation cycle against the latest reading of snap.
// It returns the events to append to the notification log, in emission
// order, and the updated state. An empty snapshot or a call inside the
// deadband returns no events and the state unchanged. A malformed latest
// reading is returned as an error and leaves the state unchanged.
func (e *Engine) Evaluate(snap models.Snapshot, state State) ([]models.NotificationEvent, State, error) {
	latest, ok := snap.Latest()
	if !ok {
		return nil, state, nil
	}

	if err := latest.Reading.Validate(); err != nil {
		var mre *models.MalformedReadingError
		if errors.As(err, &mre) {
			mre.Key = latest.Key
		}
		return nil, state, err
	}

	now := e.clock.Now()
	if !state.LastEvaluation.IsZero() && now.Sub(state.LastEvaluation) < e.deadband {
		return nil, state, nil
	}
	state.LastEvaluation = now

	var events []models.NotificationEvent
	for _, c := range Categories {
		next, tr := e.step(c, state.Status(c), latest.Reading)
		state = state.with(c, next)
		if tr == "" {
			continue
		}
		events = append(events, e.event(c, tr, latest.Reading, now))
	}
	return events, state, nil
}

// step advances the state machine of one category and returns the edge
// taken, if any.
func (e *Engine) step(c models.AlertCategory, cur Status, r models.Reading) (Status, models.Transition) {
	holds := e.holds(c, r)
	switch {
	case holds && cur == Inactive:
		return Active, models.TransitionActivated
	case !holds && cur == Active:
		// Low water escalating to critical is not a recovery.
		if c == models.CategoryLowWater && r.WaterLevel <= e.rules.CriticalWaterLevel {
			return Inactive, ""
		}
		return Inactive, models.TransitionRecovered
	default:
		return cur, ""
	}
}

// holds evaluates the trigger predicate of a category
func (e *Engine) holds(c models.AlertCategory, r models.Reading) bool {
	switch c {
	case models.CategoryCriticalWater:
		return r.WaterLevel <= e.rules.CriticalWaterLevel
	case models.CategoryLowWater:
		return r.WaterLevel <= e.rules.LowWaterLevel && r.WaterLevel > e.rules.CriticalWaterLevel
	case models.CategoryClimate:
		return r.Humidity >= e.rules.HumidityMin && r.Humidity <= e.rules.HumidityMax &&
			r.Temperature >= e.rules.TemperatureMin && r.Temperature <= e.rules.TemperatureMax
	default:
		return false
	}
}

func (e *Engine) event(c models.AlertCategory, tr models.Transition, r models.Reading, now time.Time) models.NotificationEvent {
	readingTime := time.UnixMilli(r.Timestamp).In(e.loc)
	return models.NotificationEvent{
		ID:               e.newID(),
		Timestamp:        now.In(e.loc).Format(models.NotificationTimeLayout),
		Message:          RenderMessage(c, tr, r, readingTime),
		Category:         c,
		Transition:       tr,
		Icon:             Icon(c, tr),
		ReadingTimestamp: r.Timestamp,
		EmittedAt:        now,
	}
}
