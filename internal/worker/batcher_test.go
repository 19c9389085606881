package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"agribot/internal/models"
)

// MockPublisher records every batch it receives
type MockPublisher struct {
	mu      sync.Mutex
	batches [][]string
	fail    bool
	panics  bool
}

func (m *MockPublisher) Publish(ctx context.Context, envelopes []*models.Envelope) error {
	if m.panics {
		panic("publisher exploded")
	}
	if m.fail {
		return errors.New("broker unavailable")
	}
	ids := make([]string, len(envelopes))
	for i, env := range envelopes {
		ids[i] = env.Event.ID
	}
	m.mu.Lock()
	m.batches = append(m.batches, ids)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []string
	for _, b := range m.batches {
		all = append(all, b...)
	}
	return all
}

func (m *MockPublisher) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func testEnvelope(id string) *models.Envelope {
	event := &models.NotificationEvent{ID: id, Category: models.CategoryClimate}
	return models.NewEnvelope(event, "session-1", "user-1")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatcher_PreservesQueueOrder(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockPublisher{}

	b := NewBatcher(BatcherConfig{
		Publisher:     mock,
		Queue:         ch,
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	})
	for i := 0; i < 25; i++ {
		ch <- testEnvelope(fmt.Sprintf("evt-%02d", i))
	}
	b.Start()
	defer b.Stop()

	waitFor(t, func() bool { return len(mock.published()) == 25 })

	for i, id := range mock.published() {
		if want := fmt.Sprintf("evt-%02d", i); id != want {
			t.Fatalf("position %d = %s, want %s", i, id, want)
		}
	}
	if got := mock.batchCount(); got != 3 {
		t.Errorf("expected 3 batches of at most 10, got %d", got)
	}
	if stats := b.Stats(); stats.Processed != 25 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{}

	b := NewBatcher(BatcherConfig{
		Publisher:     mock,
		Queue:         ch,
		BatchSize:     100,
		FlushInterval: 20 * time.Millisecond,
	})
	b.Start()
	defer b.Stop()

	ch <- testEnvelope("evt-1")
	waitFor(t, func() bool { return mock.batchCount() == 1 })
}

func TestBatcher_DrainsOnStop(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{}

	b := NewBatcher(BatcherConfig{
		Publisher:     mock,
		Queue:         ch,
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	b.Start()
	for i := 0; i < 5; i++ {
		ch <- testEnvelope(fmt.Sprintf("evt-%d", i))
	}
	b.Stop()

	if got := len(mock.published()); got != 5 {
		t.Errorf("expected queued envelopes published on stop, got %d", got)
	}
}

func TestBatcher_DropsFailedBatch(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{fail: true}

	b := NewBatcher(BatcherConfig{
		Publisher:     mock,
		Queue:         ch,
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	b.Start()
	for i := 0; i < 3; i++ {
		ch <- testEnvelope(fmt.Sprintf("evt-%d", i))
	}
	b.Stop()

	if stats := b.Stats(); stats.Failed != 3 || stats.Processed != 0 {
		t.Errorf("expected 3 failed, got %+v", stats)
	}
}

func TestBatcher_RecoversFromPublisherPanic(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{panics: true}

	b := NewBatcher(BatcherConfig{
		Publisher:     mock,
		Queue:         ch,
		BatchSize:     1,
		FlushInterval: time.Hour,
	})
	b.Start()
	ch <- testEnvelope("evt-1")
	ch <- testEnvelope("evt-2")
	b.Stop()

	if stats := b.Stats(); stats.Failed != 2 {
		t.Errorf("expected both batches counted failed, got %+v", stats)
	}
}

func TestBatcher_StopWithoutStart(t *testing.T) {
	b := NewBatcher(BatcherConfig{Publisher: &MockPublisher{}, Queue: make(chan *models.Envelope)})
	b.Stop()
}
