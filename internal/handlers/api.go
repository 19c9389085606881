package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agribot/internal/dashboard"
	"agribot/internal/logger"
	"agribot/internal/models"
	"agribot/internal/series"
	"agribot/internal/session"
	"agribot/internal/store"
	"agribot/internal/websocket"
)

// API serves the dashboard over HTTP
type API struct {
	registry *session.Registry
	cycle    *dashboard.Cycle
	live     *dashboard.Live
	hub      *websocket.Hub
	ingest   *IngestHandler

	defaultResample int
}

// Config holds API dependencies
type Config struct {
	Registry *session.Registry
	Cycle    *dashboard.Cycle
	Live     *dashboard.Live
	Hub      *websocket.Hub
	// Target of reading ingestion
	Writer      store.Writer
	MaxBodySize int64
	// Resample interval used when a request omits it
	DefaultResample int
}

// New creates the API
func New(cfg Config) *API {
	if cfg.DefaultResample <= 0 {
		cfg.DefaultResample = series.DefaultResampleSeconds
	}
	return &API{
		registry:        cfg.Registry,
		cycle:           cfg.Cycle,
		live:            cfg.Live,
		hub:             cfg.Hub,
		ingest:          NewIngestHandler(IngestConfig{Writer: cfg.Writer, MaxBodySize: cfg.MaxBodySize}),
		defaultResample: cfg.DefaultResample,
	}
}

// Routes mounts the API under /api/v1
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users/{user}/readings", a.ingest.ServeHTTP)

		r.Post("/sessions", a.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", a.deleteSession)
			r.Get("/dashboard", a.dashboard)
			r.Get("/readings", a.readings)
			r.Get("/notifications", a.notifications)
			r.Delete("/notifications", a.clearNotifications)
			r.Get("/live", a.liveStatus)
			r.Post("/live", a.startLive)
			r.Delete("/live", a.stopLive)
			r.Get("/ws", a.serveWS)
		})
	})
}

// session resolves the {id} URL parameter, writing 404 when unknown
func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	sess, err := a.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

// statusOf maps domain errors onto HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, series.ErrInvalidInterval), errors.Is(err, errBadQuery), errors.Is(err, store.ErrEmptyUserID):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrMalformedReading):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dashboard.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, dashboard.ErrLiveClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("handlers")
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
