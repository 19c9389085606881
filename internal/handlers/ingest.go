package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agribot/internal/logger"
	"agribot/internal/models"
	"agribot/internal/store"
)

// IngestHandler accepts sensor readings for a user and appends them to
// the reading store
type IngestHandler struct {
	writer store.Writer

	// Max body size (default 1MB)
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Writer      store.Writer
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20
	}

	return &IngestHandler{
		writer:      cfg.Writer,
		maxBodySize: maxBodySize,
	}
}

// IngestRequest is the batch form of the payload
type IngestRequest struct {
	Readings []json.RawMessage `json:"readings"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Keys     []string      `json:"keys"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why a reading was rejected
type IngestError struct {
	Index int    `json:"index"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	raws, err := parseBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(raws) == 0 {
		writeError(w, http.StatusBadRequest, "no readings provided")
		return
	}

	response := h.appendReadings(r, userID, raws)

	status := http.StatusOK
	if response.Rejected > 0 && response.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, response)
}

// parseBody accepts {"readings": [...]}, a bare array, or a single reading
func parseBody(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	if body[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %v", err)
		}
		return raws, nil
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON format: expected reading object or array of readings")
	}
	if req.Readings != nil {
		return req.Readings, nil
	}
	return []json.RawMessage{body}, nil
}

func (h *IngestHandler) appendReadings(r *http.Request, userID string, raws []json.RawMessage) IngestResponse {
	log := logger.WithComponent("ingest")
	response := IngestResponse{Keys: make([]string, 0, len(raws))}

	for i, raw := range raws {
		reading, err := models.DecodeReading(strconv.Itoa(i), raw)
		if err != nil {
			ie := IngestError{Index: i, Error: err.Error()}
			var mre *models.MalformedReadingError
			if errors.As(err, &mre) {
				ie.Field = mre.Field
			}
			response.Errors = append(response.Errors, ie)
			response.Rejected++
			continue
		}

		key, err := h.writer.Append(r.Context(), userID, reading)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to append reading")
			response.Errors = append(response.Errors, IngestError{Index: i, Error: "store unavailable, try again later"})
			response.Rejected++
			continue
		}
		response.Keys = append(response.Keys, key)
		response.Accepted++
	}

	log.Debug().
		Str("user_id", userID).
		Int("accepted", response.Accepted).
		Int("rejected", response.Rejected).
		Msg("readings ingested")

	response.Success = response.Rejected == 0
	return response
}
