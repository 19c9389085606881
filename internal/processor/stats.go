package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"agribot/internal/kafka"
	"agribot/internal/logger"
	"agribot/internal/worker"
)

// Stats is the body of the /stats endpoint
type Stats struct {
	Sessions         int                  `json:"sessions"`
	LiveSessions     int                  `json:"live_sessions"`
	WebsocketDropped uint64               `json:"websocket_dropped"`
	Notifications    *worker.Stats        `json:"notifications,omitempty"`
	Producer         *kafka.ProducerStats `json:"producer,omitempty"`
	Queue            *QueueStats          `json:"queue,omitempty"`
}

// QueueStats describes the notification queue feeding the batcher
type QueueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

func (p *Processor) stats() Stats {
	s := Stats{
		Sessions:         p.registry.Len(),
		LiveSessions:     p.live.Len(),
		WebsocketDropped: p.hub.Dropped(),
	}
	if p.batcher != nil {
		ns := p.batcher.Stats()
		ps := p.producer.Stats()
		s.Notifications = &ns
		s.Producer = &ps
		s.Queue = &QueueStats{Buffered: len(p.envelopeChan), Capacity: cap(p.envelopeChan)}
	}
	return s
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	healthy := true

	if _, err := p.store.Snapshot(ctx, "health"); err != nil {
		checks["store"] = err.Error()
		healthy = false
	}
	if p.producer != nil {
		checks["kafka"] = "ok"
		if err := p.producer.HealthCheck(ctx); err != nil {
			checks["kafka"] = err.Error()
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
		log := logger.WithComponent("processor")
		log.Warn().Interface("checks", checks).Msg("health check failed")
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, p.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
