package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"agribot/internal/models"
)

func TestMemoryStoreSnapshot(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	for _, ts := range []int64{3000, 1000, 2000} {
		if _, err := s.Append(ctx, "user-1", models.Reading{Timestamp: ts, WaterLevel: float64(ts)}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	snap, err := s.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Len() != 3 {
		t.Fatalf("expected 3 readings, got %d", snap.Len())
	}
	latest, _ := snap.Latest()
	if latest.Reading.Timestamp != 3000 {
		t.Errorf("expected latest key to hold the newest reading, got %d", latest.Reading.Timestamp)
	}

	other, err := s.Snapshot(ctx, "user-2")
	if err != nil || !other.IsEmpty() {
		t.Errorf("expected empty snapshot for unknown user, got %d, %v", other.Len(), err)
	}
}

func TestMemoryStoreCapacity(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	for ts := int64(1); ts <= 3; ts++ {
		s.Append(ctx, "u", models.Reading{Timestamp: ts})
	}

	snap, _ := s.Snapshot(ctx, "u")
	readings := snap.Readings()
	if len(readings) != 2 || readings[0].Timestamp != 2 {
		t.Errorf("expected oldest reading dropped, got %+v", readings)
	}
}

func TestMemoryStoreRejects(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	if _, err := s.Append(ctx, "", models.Reading{Timestamp: 1}); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := s.Append(ctx, "u", models.Reading{}); !errors.Is(err, models.ErrMalformedReading) {
		t.Errorf("expected ErrMalformedReading, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Snapshot(cancelled, "u"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDecodeHash(t *testing.T) {
	snap, err := decodeHash(map[string]string{
		"-Nb1": `{"timestamp":1700000000000,"water_level":50,"temperature":20,"humidity":60,"moisture":30}`,
		"-Nb2": `{"timestamp":1700000001000,"water_level":49,"temperature":20,"humidity":60,"moisture":30}`,
	})
	if err != nil {
		t.Fatalf("decodeHash() error: %v", err)
	}
	if snap.Len() != 2 {
		t.Errorf("expected 2 readings, got %d", snap.Len())
	}

	_, err = decodeHash(map[string]string{"-Nb3": `{"timestamp":1700000000000}`})
	if !errors.Is(err, models.ErrMalformedReading) {
		t.Errorf("expected ErrMalformedReading, got %v", err)
	}
}

// skipIfNoRedis skips the test if Redis is not available
func skipIfNoRedis(t *testing.T) {
	if os.Getenv("REDIS_TEST") != "1" {
		t.Skip("Skipping Redis integration test. Set REDIS_TEST=1 to run.")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	skipIfNoRedis(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, RedisConfig{Addr: "localhost:6379"})
	if err != nil {
		t.Fatalf("NewRedisClient() error: %v", err)
	}
	s := NewRedisStore(client, "agribot_test:")
	defer s.Close()
	defer client.Del(ctx, "agribot_test:user-1")

	if _, err := s.Append(ctx, "user-1", models.Reading{Timestamp: 1700000000000, WaterLevel: 12}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	snap, err := s.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("expected 1 reading, got %d", snap.Len())
	}
}
