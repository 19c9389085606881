package models

import "time"

// NotificationTimeLayout is the layout of NotificationEvent.Timestamp and of
// reading times embedded in messages
const NotificationTimeLayout = "2006-01-02 15:04:05"

// AlertCategory names a monitored condition family
type AlertCategory string

const (
	CategoryCriticalWater AlertCategory = "critical_water"
	CategoryLowWater      AlertCategory = "low_water"
	CategoryClimate       AlertCategory = "suboptimal_climate"
)

// Transition is the edge that produced a notification
type Transition string

const (
	TransitionActivated Transition = "activated"
	TransitionRecovered Transition = "recovered"
)

// NotificationEvent is one entry of a session's notification log
type NotificationEvent struct {
	// Unique identifier of the event
	ID string `json:"id"`

	// Wall-clock time of emission, formatted with NotificationTimeLayout
	Timestamp string `json:"timestamp"`

	// Rendered message text
	Message string `json:"message"`

	// Condition family and edge that produced the event
	Category   AlertCategory `json:"category"`
	Transition Transition    `json:"transition"`

	// Toast icon for the event
	Icon string `json:"icon"`

	// Epoch milliseconds of the reading that triggered the event
	ReadingTimestamp int64 `json:"reading_timestamp"`

	EmittedAt time.Time `json:"emitted_at"`
}
