package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	var cycles atomic.Int64
	s := NewScheduler("test", 10*time.Millisecond, func(ctx context.Context) error {
		cycles.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if n := cycles.Load(); n < 3 {
		t.Errorf("expected several cycles, got %d", n)
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected Done closed after Run returns")
	}
}

func TestScheduler_StopBetweenCycles(t *testing.T) {
	var cycles atomic.Int64
	var s *Scheduler
	s = NewScheduler("test", 5*time.Millisecond, func(ctx context.Context) error {
		if cycles.Add(1) == 2 {
			s.Stop()
		}
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	if n := cycles.Load(); n != 2 {
		t.Errorf("expected exactly 2 cycles, got %d", n)
	}
}

func TestScheduler_RecoversAndCountsFailures(t *testing.T) {
	var cycles atomic.Int64
	s := NewScheduler("test", 5*time.Millisecond, func(ctx context.Context) error {
		switch cycles.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("fetch failed")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if stats := s.Stats(); stats.Failed != 2 {
		t.Errorf("expected 2 failed cycles, got %+v", stats)
	}
}

func TestScheduler_RunTwice(t *testing.T) {
	s := NewScheduler("test", time.Millisecond, func(ctx context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Run(ctx)
	if err := s.Run(ctx); !errors.Is(err, ErrSchedulerRunning) {
		t.Errorf("expected ErrSchedulerRunning, got %v", err)
	}
}
