package alerts

import (
	"time"

	"agribot/internal/models"
)

// Status is the state of one condition family
type Status int

const (
	Inactive Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Categories lists the condition families in evaluation order.
var Categories = []models.AlertCategory{
	models.CategoryCriticalWater,
	models.CategoryLowWater,
	models.CategoryClimate,
}

// State is the alerting state of one session. It is a value: Evaluate
// returns an updated copy.
type State struct {
	LastEvaluation time.Time

	criticalWater Status
	lowWater      Status
	climate       Status
}

// Status returns the current status of a category
func (s State) Status(c models.AlertCategory) Status {
	switch c {
	case models.CategoryCriticalWater:
		return s.criticalWater
	case models.CategoryLowWater:
		return s.lowWater
	case models.CategoryClimate:
		return s.climate
	default:
		return Inactive
	}
}

func (s State) with(c models.AlertCategory, st Status) State {
	switch c {
	case models.CategoryCriticalWater:
		s.criticalWater = st
	case models.CategoryLowWater:
		s.lowWater = st
	case models.CategoryClimate:
		s.climate = st
	}
	return s
}
