package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestLoggingSetsRequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("expected request id on the request")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status passed through, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id on the response")
	}
}

func TestLoggingKeepsCallerRequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("expected caller request id, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Logging, Recovery)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = routePattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/123", nil))
	if got != "/sessions/{id}" {
		t.Errorf("expected route pattern, got %q", got)
	}

	if p := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); p != "unmatched" {
		t.Errorf("expected unmatched outside a router, got %q", p)
	}
}
