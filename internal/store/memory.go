package store

import (
	"context"
	"fmt"
	"sync"

	"agribot/internal/models"
)

const defaultMemoryCapacity = 10000

// MemoryStore keeps the most recent readings of every user in memory
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string][]models.Entry
	capacity int
	seq      uint64
}

// NewMemoryStore creates a store keeping at most capacity readings per user
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{
		users:    make(map[string][]models.Entry),
		capacity: capacity,
	}
}

// Append stores a reading and returns its key. Keys sort by timestamp,
// then by arrival.
func (s *MemoryStore) Append(ctx context.Context, userID string, reading models.Reading) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	if err := reading.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	key := fmt.Sprintf("%013d-%06d", reading.Timestamp, s.seq%1000000)

	buf := s.users[userID]
	if len(buf) >= s.capacity {
		// Remove the oldest element
		buf = buf[1:]
	}
	s.users[userID] = append(buf, models.Entry{Key: key, Reading: reading})
	return key, nil
}

// Snapshot returns a copy of the user's readings
func (s *MemoryStore) Snapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	if userID == "" {
		return models.Snapshot{}, ErrEmptyUserID
	}
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.users[userID]
	m := make(map[string]models.Reading, len(buf))
	for _, e := range buf {
		m[e.Key] = e.Reading
	}
	return models.NewSnapshot(m), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
