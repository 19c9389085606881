package notify

import (
	"agribot/internal/logger"
	"agribot/internal/metrics"
	"agribot/internal/models"
	"agribot/internal/websocket"
)

// Sink delivers a toast for one notification. Toast must not block the
// evaluation cycle.
type Sink interface {
	Toast(env *models.Envelope)
}

// Multi fans a toast out to every sink in order
type Multi []Sink

func (m Multi) Toast(env *models.Envelope) {
	for _, s := range m {
		s.Toast(env)
	}
}

// Hub pushes toasts to the websocket clients of the envelope's session
type Hub struct {
	hub *websocket.Hub
}

// NewHub creates a sink on top of a websocket hub
func NewHub(hub *websocket.Hub) *Hub {
	return &Hub{hub: hub}
}

func (h *Hub) Toast(env *models.Envelope) {
	if !h.hub.Send(env.SessionID, websocket.TypeToast, env.Event) {
		metrics.ToastsDropped.WithLabelValues("websocket").Inc()
	}
}

// Queue hands envelopes to a buffered channel drained by the kafka
// batcher. Envelopes are dropped when the channel is full.
type Queue struct {
	ch chan<- *models.Envelope
}

// NewQueue creates a sink writing into ch
func NewQueue(ch chan<- *models.Envelope) *Queue {
	return &Queue{ch: ch}
}

func (q *Queue) Toast(env *models.Envelope) {
	select {
	case q.ch <- env:
		metrics.WorkerQueueSize.Set(float64(len(q.ch)))
	default:
		metrics.ToastsDropped.WithLabelValues("kafka").Inc()
		log := logger.WithComponent("notify")
		log.Warn().
			Str("session_id", env.SessionID).
			Str("event_id", env.Event.ID).
			Msg("notification queue full, dropping envelope")
	}
}

// Log writes every toast to the structured log
type Log struct{}

func (Log) Toast(env *models.Envelope) {
	log := logger.WithSession("notify", env.SessionID, env.UserID)
	log.Info().
		Str("event_id", env.Event.ID).
		Str("category", string(env.Event.Category)).
		Str("transition", string(env.Event.Transition)).
		Msg(env.Event.Message)
}
