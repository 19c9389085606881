package models

import (
	"time"
)

// Envelope wraps a NotificationEvent with the session metadata sinks need
type Envelope struct {
	// Original event
	Event *NotificationEvent `json:"event"`

	// Session and account the event belongs to
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Delivery metadata
	DeliveredAt  time.Time `json:"delivered_at"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping a notification event
func NewEnvelope(event *NotificationEvent, sessionID, userID string) *Envelope {
	return &Envelope{
		Event:        event,
		SessionID:    sessionID,
		UserID:       userID,
		DeliveredAt:  time.Now().UTC(),
		PartitionKey: sessionID, // events are ordered per session
	}
}
