package models

import (
	"errors"
	"fmt"
)

// ErrMalformedReading is matched by every MalformedReadingError
var ErrMalformedReading = errors.New("malformed reading")

// MalformedReadingError reports a reading that breaks the store contract.
// It is never recovered from: callers propagate it.
type MalformedReadingError struct {
	Key    string
	Field  string
	Reason string
}

func (e *MalformedReadingError) Error() string {
	switch {
	case e.Key != "" && e.Field != "":
		return fmt.Sprintf("malformed reading %q: field %s %s", e.Key, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("malformed reading: field %s %s", e.Field, e.Reason)
	case e.Key != "":
		return fmt.Sprintf("malformed reading %q: %s", e.Key, e.Reason)
	default:
		return "malformed reading: " + e.Reason
	}
}

func (e *MalformedReadingError) Unwrap() error { return ErrMalformedReading }
