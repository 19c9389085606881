package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agribot/internal/alerts"
	"agribot/internal/models"
	"agribot/internal/series"
	"agribot/internal/session"
	"agribot/internal/store"
	"agribot/internal/websocket"
)

const baseTS = int64(1705312800000) // 2024-01-15 10:00:00 UTC

type recordingSink struct {
	mu  sync.Mutex
	got []*models.Envelope
}

func (s *recordingSink) Toast(env *models.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env)
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type recordingPusher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPusher) Send(sessionID, msgType string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, msgType)
	return true
}

func (p *recordingPusher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.types)
}

type failingStore struct{}

func (failingStore) Snapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	return models.Snapshot{}, errors.New("connection refused")
}

type staticStore struct {
	snap models.Snapshot
}

func (s staticStore) Snapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	return s.snap, nil
}

func seed(t *testing.T, n int, water float64) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore(0)
	for i := 0; i < n; i++ {
		r := models.Reading{
			Timestamp:   baseTS + int64(i)*1000,
			WaterLevel:  water,
			Temperature: 25,
			Humidity:    70,
			Moisture:    30,
		}
		if _, err := st.Append(context.Background(), "user-1", r); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	return st
}

func newCycle(st store.ReadingStore, sink *recordingSink, pusher Pusher, clock alerts.Clock) *Cycle {
	return NewCycle(Config{
		Store:     st,
		Engine:    alerts.NewEngine(alerts.Config{Clock: clock}),
		Processor: series.NewProcessor(series.DefaultOptions()),
		Sink:      sink,
		Pusher:    pusher,
		Backend:   "memory",
	})
}

func allVariables() series.ViewConfig {
	return series.ViewConfig{Variables: models.Variables, ResampleSeconds: series.DefaultResampleSeconds}
}

func TestCycleRun(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	c := newCycle(seed(t, 60, 5), sink, nil, alerts.ClockFunc(func() time.Time { return now }))
	sess := session.New("user-1")

	out, err := c.Run(context.Background(), sess, allVariables())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Category != models.CategoryCriticalWater {
		t.Fatalf("expected one critical water event, got %+v", out.Events)
	}
	if out.Result.IsEmpty() {
		t.Fatalf("expected a series, got %+v", out.Result.Empty)
	}
	if sink.len() != 1 || sink.got[0].SessionID != sess.ID || sink.got[0].UserID != "user-1" {
		t.Errorf("expected one toast for the session, got %+v", sink.got)
	}
	if n := len(sess.Notifications()); n != 1 {
		t.Errorf("expected 1 logged notification, got %d", n)
	}
	if out.Deadbanded {
		t.Error("first evaluation should not be deadbanded")
	}

	// Same instant: inside the deadband
	out, err = c.Run(context.Background(), sess, allVariables())
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if len(out.Events) != 0 || sink.len() != 1 {
		t.Errorf("expected no new events inside deadband, got %+v", out.Events)
	}
	if !out.Deadbanded {
		t.Error("expected the second evaluation to be deadbanded")
	}

	// Past the deadband the rules run again
	now = now.Add(2 * time.Second)
	out, err = c.Run(context.Background(), sess, allVariables())
	if err != nil {
		t.Fatalf("third Run() error: %v", err)
	}
	if out.Deadbanded {
		t.Error("expected an evaluation past the deadband")
	}
}

func TestCycleEmptySnapshotNotDeadbanded(t *testing.T) {
	c := newCycle(staticStore{}, &recordingSink{}, nil, alerts.SystemClock)
	sess := session.New("user-1")

	for i := 0; i < 2; i++ {
		out, err := c.Run(context.Background(), sess, allVariables())
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if out.Deadbanded {
			t.Errorf("run %d: an empty snapshot is not a deadband skip", i)
		}
	}
}

func TestCycleClosedSession(t *testing.T) {
	sink := &recordingSink{}
	c := newCycle(seed(t, 60, 5), sink, nil, alerts.SystemClock)
	reg := session.NewRegistry()
	sess := reg.Create("user-1")
	reg.Delete(sess.ID)

	if _, err := c.Run(context.Background(), sess, allVariables()); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if sink.len() != 0 {
		t.Error("expected no toasts for a deleted session")
	}
}

func TestCycleFetchError(t *testing.T) {
	sink := &recordingSink{}
	c := newCycle(failingStore{}, sink, nil, alerts.SystemClock)
	sess := session.New("user-1")

	if _, err := c.Run(context.Background(), sess, allVariables()); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if sink.len() != 0 || len(sess.Notifications()) != 0 {
		t.Error("expected no toasts or notifications after a failed fetch")
	}
}

func TestCycleMalformedReading(t *testing.T) {
	snap := models.NewSnapshot(map[string]models.Reading{
		"a": {Timestamp: baseTS, WaterLevel: 5, Temperature: 25, Humidity: 70, Moisture: 30},
		"b": {Timestamp: 0, WaterLevel: 5},
	})
	sink := &recordingSink{}
	c := newCycle(staticStore{snap: snap}, sink, nil, alerts.SystemClock)
	sess := session.New("user-1")

	_, err := c.Run(context.Background(), sess, allVariables())
	if !errors.Is(err, models.ErrMalformedReading) {
		t.Fatalf("expected ErrMalformedReading, got %v", err)
	}
	if sess.AlertState() != (alerts.State{}) {
		t.Error("expected alert state unchanged")
	}
	if sink.len() != 0 {
		t.Error("expected no toasts")
	}
}

func TestCycleInvalidInterval(t *testing.T) {
	c := newCycle(seed(t, 1, 50), &recordingSink{}, nil, alerts.SystemClock)
	view := allVariables()
	view.ResampleSeconds = 0

	if _, err := c.Run(context.Background(), session.New("user-1"), view); !errors.Is(err, series.ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestCyclePushesOnlyInLiveMode(t *testing.T) {
	pusher := &recordingPusher{}
	c := newCycle(seed(t, 60, 50), &recordingSink{}, pusher, alerts.SystemClock)
	sess := session.New("user-1")

	if _, err := c.Run(context.Background(), sess, allVariables()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if pusher.len() != 0 {
		t.Fatal("expected no push outside live mode")
	}

	view := allVariables()
	view.Live = true
	if _, err := c.Run(context.Background(), sess, view); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if pusher.len() != 1 || pusher.types[0] != websocket.TypeSeries {
		t.Errorf("expected one series push, got %v", pusher.types)
	}
}

func TestLiveStartStop(t *testing.T) {
	pusher := &recordingPusher{}
	c := newCycle(seed(t, 60, 50), &recordingSink{}, pusher, alerts.SystemClock)
	live := NewLive(c, 5*time.Millisecond)
	defer live.Close()

	sess := session.New("user-1")
	if err := live.Start(sess, allVariables()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if view, ok := live.View(sess.ID); !ok || !view.Live {
		t.Fatalf("expected a live view, got %+v %v", view, ok)
	}

	deadline := time.Now().Add(time.Second)
	for pusher.len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated pushes, got %d", pusher.len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !live.Stop(sess.ID) {
		t.Fatal("expected an active run to stop")
	}
	stopped := pusher.len()
	time.Sleep(30 * time.Millisecond)
	if pusher.len() != stopped {
		t.Error("expected no cycles after Stop")
	}
	if live.Len() != 0 || live.Stop(sess.ID) {
		t.Error("expected no live runs left")
	}
}

func TestLiveRejectsInvalidView(t *testing.T) {
	live := NewLive(newCycle(seed(t, 1, 50), &recordingSink{}, nil, alerts.SystemClock), time.Millisecond)
	defer live.Close()

	view := allVariables()
	view.ResampleSeconds = 51
	if err := live.Start(session.New("user-1"), view); !errors.Is(err, series.ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
	if live.Len() != 0 {
		t.Error("expected no run for an invalid view")
	}
}

func TestLiveConcurrentStartKeepsOneRun(t *testing.T) {
	pusher := &recordingPusher{}
	c := newCycle(seed(t, 60, 50), &recordingSink{}, pusher, alerts.SystemClock)
	live := NewLive(c, 5*time.Millisecond)
	defer live.Close()

	sess := session.New("user-1")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := live.Start(sess, allVariables()); err != nil {
				t.Errorf("Start() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := live.Len(); n != 1 {
		t.Fatalf("expected exactly one live run, got %d", n)
	}
	if !live.Stop(sess.ID) {
		t.Fatal("expected an active run to stop")
	}

	// Every replaced run has exited, so nothing keeps pushing
	stopped := pusher.len()
	time.Sleep(30 * time.Millisecond)
	if pusher.len() != stopped {
		t.Errorf("expected no cycles after Stop, got %d more pushes", pusher.len()-stopped)
	}
}

func TestLiveRejectsDeletedSession(t *testing.T) {
	live := NewLive(newCycle(seed(t, 1, 50), &recordingSink{}, nil, alerts.SystemClock), time.Millisecond)
	defer live.Close()

	reg := session.NewRegistry()
	sess := reg.Create("user-1")
	reg.Delete(sess.ID)

	if err := live.Start(sess, allVariables()); !errors.Is(err, session.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if live.Len() != 0 {
		t.Error("expected no run for a deleted session")
	}
}

func TestLiveStartAfterClose(t *testing.T) {
	live := NewLive(newCycle(seed(t, 1, 50), &recordingSink{}, nil, alerts.SystemClock), time.Millisecond)
	live.Close()

	if err := live.Start(session.New("user-1"), allVariables()); !errors.Is(err, ErrLiveClosed) {
		t.Errorf("expected ErrLiveClosed, got %v", err)
	}
	if live.Len() != 0 {
		t.Error("expected no run after Close")
	}
}
