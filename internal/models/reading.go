package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Variable identifies one measured field of a Reading
type Variable string

const (
	VariableWaterLevel  Variable = "water_level"
	VariableTemperature Variable = "temperature"
	VariableHumidity    Variable = "humidity"
	VariableMoisture    Variable = "moisture"
)

// Variables lists every variable in canonical column order.
var Variables = []Variable{
	VariableWaterLevel,
	VariableTemperature,
	VariableHumidity,
	VariableMoisture,
}

var variableLabels = map[Variable]string{
	VariableWaterLevel:  "Water Level",
	VariableTemperature: "Temperature",
	VariableHumidity:    "Humidity",
	VariableMoisture:    "Moisture",
}

// Label returns the display label of the variable
func (v Variable) Label() string {
	if label, ok := variableLabels[v]; ok {
		return label
	}
	return string(v)
}

// IsValid checks if the variable is one of the known reading fields
func (v Variable) IsValid() bool {
	_, ok := variableLabels[v]
	return ok
}

// ParseVariable maps a display label or a field identifier back to a Variable.
func ParseVariable(s string) (Variable, bool) {
	s = strings.TrimSpace(s)
	for v, label := range variableLabels {
		if strings.EqualFold(s, label) || strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

// Reading is one sensor sample as produced by the remote store
type Reading struct {
	// Sample time in epoch milliseconds
	Timestamp int64 `json:"timestamp"`

	// Water tank level, percent
	WaterLevel float64 `json:"water_level"`

	// Air temperature, degrees Celsius
	Temperature float64 `json:"temperature"`

	// Relative humidity, percent
	Humidity float64 `json:"humidity"`

	// Soil moisture, percent
	Moisture float64 `json:"moisture"`
}

// Time returns the sample time in UTC
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// Value returns the value of the given variable.
func (r Reading) Value(v Variable) float64 {
	switch v {
	case VariableWaterLevel:
		return r.WaterLevel
	case VariableTemperature:
		return r.Temperature
	case VariableHumidity:
		return r.Humidity
	case VariableMoisture:
		return r.Moisture
	default:
		return math.NaN()
	}
}

// Validate checks the reading carries a usable timestamp and finite values.
func (r Reading) Validate() error {
	if r.Timestamp <= 0 {
		return &MalformedReadingError{Field: "timestamp", Reason: "must be a positive epoch millisecond value"}
	}
	for _, v := range Variables {
		if f := r.Value(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return &MalformedReadingError{Field: string(v), Reason: "must be a finite number"}
		}
	}
	return nil
}

// requiredFields are the keys every stored reading document must carry
var requiredFields = []string{
	"timestamp",
	string(VariableWaterLevel),
	string(VariableTemperature),
	string(VariableHumidity),
	string(VariableMoisture),
}

// DecodeReading parses a stored reading document. A document missing any
// required field, or carrying a non-numeric one, is a MalformedReadingError.
func DecodeReading(key string, data []byte) (Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Reading{}, &MalformedReadingError{Key: key, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	for _, name := range requiredFields {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return Reading{}, &MalformedReadingError{Key: key, Field: name, Reason: "missing"}
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Reading{}, &MalformedReadingError{Key: key, Field: name, Reason: "not a number"}
		}
	}

	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return Reading{}, &MalformedReadingError{Key: key, Reason: err.Error()}
	}
	if err := r.Validate(); err != nil {
		var mre *MalformedReadingError
		if errors.As(err, &mre) {
			mre.Key = key
		}
		return Reading{}, err
	}
	return r, nil
}
