package notify

import (
	"testing"

	"agribot/internal/models"
	"agribot/internal/websocket"
)

type recorder struct {
	got []*models.Envelope
}

func (r *recorder) Toast(env *models.Envelope) {
	r.got = append(r.got, env)
}

func envelope(id string) *models.Envelope {
	event := &models.NotificationEvent{ID: id, Category: models.CategoryLowWater, Transition: models.TransitionActivated}
	return models.NewEnvelope(event, "session-1", "user-1")
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, Log{}, b}.Toast(envelope("e1"))

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both sinks to receive the toast, got %d and %d", len(a.got), len(b.got))
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	ch := make(chan *models.Envelope, 2)
	q := NewQueue(ch)

	for i := 0; i < 5; i++ {
		q.Toast(envelope("e"))
	}
	if len(ch) != 2 {
		t.Errorf("expected queue to hold 2 envelopes, got %d", len(ch))
	}
}

func TestHubSinkNeverBlocks(t *testing.T) {
	// No Run loop: the hub queue fills and further toasts are dropped.
	hub := websocket.NewHub(1)
	sink := NewHub(hub)

	for i := 0; i < 3; i++ {
		sink.Toast(envelope("e"))
	}
	if hub.Dropped() != 2 {
		t.Errorf("expected 2 dropped messages, got %d", hub.Dropped())
	}
}
