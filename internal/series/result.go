package series

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"agribot/internal/models"
)

// Empty-result sentinels, for callers that prefer errors.Is
var (
	ErrEmptyData           = errors.New("no usable data")
	ErrNoVariablesSelected = errors.New("no variables selected")
	ErrInsufficientData    = errors.New("insufficient data for range")
	ErrRangeTooWide        = errors.New("time range too wide for resample interval")
)

// EmptyKind classifies why no series was produced
type EmptyKind int

const (
	EmptyNoData EmptyKind = iota
	EmptyNoVariables
	EmptyNoDataFetched
	EmptyInsufficientData
	EmptyRangeTooWide
)

func (k EmptyKind) String() string {
	switch k {
	case EmptyNoData:
		return "no data available"
	case EmptyNoVariables:
		return "no variables selected"
	case EmptyNoDataFetched:
		return "no data fetched"
	case EmptyInsufficientData:
		return "insufficient data for range"
	case EmptyRangeTooWide:
		return "time range too wide for resample interval"
	default:
		return "unknown"
	}
}

// TimeRange is an inclusive time interval
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty is the routine "nothing to chart" outcome of Process
type Empty struct {
	Kind EmptyKind
	// Available is set for EmptyInsufficientData and EmptyRangeTooWide:
	// the range the user can pick from.
	Available *TimeRange
}

// Reason returns the user-facing reason text
func (e Empty) Reason() string { return e.Kind.String() }

// Err maps the kind onto its sentinel error
func (e Empty) Err() error {
	switch e.Kind {
	case EmptyNoVariables:
		return ErrNoVariablesSelected
	case EmptyInsufficientData:
		return ErrInsufficientData
	case EmptyRangeTooWide:
		return ErrRangeTooWide
	default:
		return ErrEmptyData
	}
}

func (e Empty) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Reason    string     `json:"reason"`
		Available *TimeRange `json:"available_range,omitempty"`
	}{e.Reason(), e.Available})
}

// DisplaySeries is a regularized series ready for charting
type DisplaySeries struct {
	// Index holds the bucket start times formatted for display
	Index []string
	// Times holds the bucket start times
	Times   []time.Time
	Columns []models.Variable
	// Values is row-major; a missing bucket value is NaN
	Values   [][]float64
	Interval time.Duration
}

// Rows returns the number of buckets
func (s *DisplaySeries) Rows() int { return len(s.Times) }

// Column returns the values of one variable, or nil when not selected.
func (s *DisplaySeries) Column(v models.Variable) []float64 {
	for j, c := range s.Columns {
		if c != v {
			continue
		}
		out := make([]float64, len(s.Values))
		for i, row := range s.Values {
			out[i] = row[j]
		}
		return out
	}
	return nil
}

// MarshalJSON encodes missing values as null
func (s *DisplaySeries) MarshalJSON() ([]byte, error) {
	rows := make([]map[string]any, len(s.Values))
	for i, row := range s.Values {
		m := make(map[string]any, len(row)+1)
		m["time"] = s.Index[i]
		for j, v := range row {
			if math.IsNaN(v) {
				m[string(s.Columns[j])] = nil
			} else {
				m[string(s.Columns[j])] = v
			}
		}
		rows[i] = m
	}
	return json.Marshal(struct {
		Columns         []models.Variable `json:"columns"`
		IntervalSeconds int               `json:"interval_seconds"`
		Rows            []map[string]any  `json:"rows"`
	}{s.Columns, int(s.Interval / time.Second), rows})
}

// Result is either a DisplaySeries or an Empty outcome
type Result struct {
	Series *DisplaySeries
	Empty  *Empty
}

// IsEmpty reports whether no series was produced
func (r Result) IsEmpty() bool { return r.Series == nil }

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Series == nil {
		return json.Marshal(struct {
			Empty *Empty `json:"empty"`
		}{r.Empty})
	}
	return json.Marshal(struct {
		Series *DisplaySeries `json:"series"`
	}{r.Series})
}

func empty(kind EmptyKind) Result {
	return Result{Empty: &Empty{Kind: kind}}
}
