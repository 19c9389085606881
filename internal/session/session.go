package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"agribot/internal/alerts"
	"agribot/internal/models"
)

// Session errors
var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session closed")
)

// Log is an append-only notification log. Only Clear removes entries.
type Log struct {
	events []models.NotificationEvent
}

// Append adds events in order
func (l *Log) Append(events ...models.NotificationEvent) {
	l.events = append(l.events, events...)
}

// Recent returns the events newest first
func (l *Log) Recent() []models.NotificationEvent {
	out := make([]models.NotificationEvent, len(l.events))
	for i, e := range l.events {
		out[len(l.events)-1-i] = e
	}
	return out
}

// Last returns the most recent event
func (l *Log) Last() (models.NotificationEvent, bool) {
	if len(l.events) == 0 {
		return models.NotificationEvent{}, false
	}
	return l.events[len(l.events)-1], true
}

// Len returns the number of logged events
func (l *Log) Len() int { return len(l.events) }

// Clear drops every event
func (l *Log) Clear() { l.events = nil }

// State is everything one dashboard session owns: its notification log and
// its alerting state. Evaluations of a session are serialized.
type State struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu            sync.Mutex
	closed        bool
	notifications Log
	alerts        alerts.State
}

// New creates a session for a user
func New(userID string) *State {
	return &State{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

// EvaluateFunc computes the events and next alert state of one cycle
type EvaluateFunc func(alerts.State) ([]models.NotificationEvent, alerts.State, error)

// Evaluate runs fn against the current alert state and, on success,
// appends its events and stores its state. fn runs under the session lock.
func (s *State) Evaluate(fn EvaluateFunc) ([]models.NotificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, next, err := fn(s.alerts)
	if err != nil {
		return nil, err
	}
	s.alerts = next
	s.notifications.Append(events...)
	return events, nil
}

// Notifications returns the log newest first
func (s *State) Notifications() []models.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications.Recent()
}

// ClearNotifications empties the log. The alert state is kept, so a
// condition that is still active is not announced again.
func (s *State) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications.Clear()
}

// Closed reports whether the session was deleted
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *State) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// AlertState returns a copy of the alert state
func (s *State) AlertState() alerts.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts
}
