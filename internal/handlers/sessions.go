package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agribot/internal/logger"
	"agribot/internal/models"
	"agribot/internal/series"
)

var errBadQuery = errors.New("invalid query")

// timeLayouts are accepted for the start and end query parameters
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type dashboardResponse struct {
	// Notifications emitted by this cycle, in emission order
	NewNotifications []models.NotificationEvent `json:"new_notifications"`
	Chart            series.Result              `json:"chart"`
}

type notificationsResponse struct {
	Notifications []models.NotificationEvent `json:"notifications"`
}

type liveResponse struct {
	Live            bool              `json:"live"`
	Variables       []models.Variable `json:"variables,omitempty"`
	ResampleSeconds int               `json:"resample_seconds,omitempty"`
}

type readingsResponse struct {
	Readings []series.TableRow `json:"readings,omitempty"`
	Empty    *series.Empty     `json:"empty,omitempty"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sess := a.registry.Create(req.UserID)
	log := logger.WithSession("handlers", sess.ID, sess.UserID)
	log.Info().Msg("session created")

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
	})
}

// deleteSession signs the session out, dropping its log and alert state.
// The registry closes the session first, so a concurrent startLive is
// refused, and only then are its live run and websocket clients torn down.
func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.registry.Delete(sess.ID); err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	wasLive := a.live.Stop(sess.ID)
	clients := a.hub.Disconnect(sess.ID)

	log := logger.WithSession("handlers", sess.ID, sess.UserID)
	log.Info().Bool("was_live", wasLive).Int("websocket_clients", clients).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	view, err := a.parseView(r.URL.Query())
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}

	out, err := a.cycle.Run(r.Context(), sess, view)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	if out.Events == nil {
		out.Events = []models.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, dashboardResponse{NewNotifications: out.Events, Chart: out.Result})
}

func (a *API) readings(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	snap, err := a.cycle.Snapshot(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	rows, empty, err := series.Table(snap)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, readingsResponse{Readings: rows, Empty: empty})
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	events := sess.Notifications()
	if events == nil {
		events = []models.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: events})
}

func (a *API) clearNotifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sess.ClearNotifications()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) startLive(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	view, err := a.parseView(r.URL.Query())
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	if err := a.live.Start(sess, view); err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) liveStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	resp := liveResponse{}
	if view, ok := a.live.View(sess.ID); ok {
		resp = liveResponse{Live: true, Variables: view.Variables, ResampleSeconds: view.ResampleSeconds}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) stopLive(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if !a.live.Stop(sess.ID) {
		writeError(w, http.StatusNotFound, "live mode is not running")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.hub.Serve(w, r, sess.ID); err != nil {
		log := logger.WithSession("handlers", sess.ID, sess.UserID)
		log.Warn().Err(err).Msg("websocket upgrade failed")
	}
}

// parseView builds a view from query parameters. An absent vars parameter
// selects every variable; an empty one selects none.
func (a *API) parseView(q url.Values) (series.ViewConfig, error) {
	view := series.ViewConfig{
		Variables:       models.Variables,
		ResampleSeconds: a.defaultResample,
	}

	var err error
	if view.Range.Start, err = parseTime(q.Get("start")); err != nil {
		return view, fmt.Errorf("%w: start: %v", errBadQuery, err)
	}
	if view.Range.End, err = parseTime(q.Get("end")); err != nil {
		return view, fmt.Errorf("%w: end: %v", errBadQuery, err)
	}

	if q.Has("vars") {
		view.Variables = nil
		for _, name := range strings.Split(q.Get("vars"), ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			v, ok := models.ParseVariable(name)
			if !ok {
				return view, fmt.Errorf("%w: unknown variable %q", errBadQuery, name)
			}
			view.Variables = append(view.Variables, v)
		}
	}

	if s := q.Get("interval"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return view, fmt.Errorf("%w: interval: %v", errBadQuery, err)
		}
		view.ResampleSeconds = n
	}

	if s := q.Get("live"); s != "" {
		live, err := strconv.ParseBool(s)
		if err != nil {
			return view, fmt.Errorf("%w: live: %v", errBadQuery, err)
		}
		view.Live = live
	}

	return view, view.Validate()
}

// parseTime parses a UTC bound; an empty string is the zero time
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
