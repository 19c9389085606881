package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agribot/internal/config"
	"agribot/internal/dashboard"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func TestRunShutsDownOnCancel(t *testing.T) {
	p := New(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not shut down")
	}
}

func TestHealthAndStats(t *testing.T) {
	p := New(testConfig())
	if err := p.initStore(context.Background()); err != nil {
		t.Fatalf("initStore() error: %v", err)
	}
	p.live = dashboard.NewLive(p.newCycle(), time.Second)
	defer p.live.Close()
	p.registry.Create("farmer")

	rec := httptest.NewRecorder()
	p.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	p.statsHandler(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Sessions != 1 || stats.Notifications != nil {
		t.Errorf("unexpected stats %+v", stats)
	}
}
