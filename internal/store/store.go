package store

import (
	"context"
	"errors"

	"agribot/internal/models"
)

// ErrEmptyUserID is returned when a snapshot is requested without a user
var ErrEmptyUserID = errors.New("user id cannot be empty")

// ReadingStore supplies point-in-time snapshots of a user's readings. An
// unknown user or a user without readings yields an empty snapshot; errors
// are reserved for transport failures and malformed stored readings.
type ReadingStore interface {
	Snapshot(ctx context.Context, userID string) (models.Snapshot, error)
}

// Writer is implemented by stores that accept new readings
type Writer interface {
	Append(ctx context.Context, userID string, reading models.Reading) (string, error)
}

// Store is a readable and writable reading store
type Store interface {
	ReadingStore
	Writer
	Close() error
}
