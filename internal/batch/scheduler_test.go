package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, zap.NewNop())

	if s.State() != StateStopped {
		t.Fatalf("initial state = %q, want STOPPED", s.State())
	}

	s.Start()
	s.Start() // no-op, just a warning
	if s.State() != StateRunning {
		t.Fatalf("state after Start = %q, want RUNNING", s.State())
	}

	s.Stop()
	s.Stop() // no-op
	if s.State() != StateStopped {
		t.Fatalf("state after Stop = %q, want STOPPED", s.State())
	}

	// Restartable after a stop.
	s.Start()
	if s.State() != StateRunning {
		t.Fatalf("state after restart = %q, want RUNNING", s.State())
	}
	s.Stop()
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(time.Second, zap.NewNop())
	run := func(context.Context) error { return nil }

	tests := []struct {
		name string
		job  Job
	}{
		{"empty name", Job{Every: time.Hour, Run: run}},
		{"neither schedule", Job{Name: "j", Run: run}},
		{"both schedules", Job{Name: "j", Every: time.Hour, At: "02:00", Run: run}},
		{"bad At", Job{Name: "j", At: "25:99", Run: run}},
		{"nil Run", Job{Name: "j", Every: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Register(tt.job); err == nil {
				t.Errorf("Register(%+v) = nil error", tt.job)
			}
		})
	}

	if err := s.Register(Job{Name: "ok", Every: time.Hour, Run: run}); err != nil {
		t.Fatalf("Register(valid) error = %v", err)
	}
	if err := s.Register(Job{Name: "ok", Every: time.Hour, Run: run}); err == nil {
		t.Error("Register(duplicate name) = nil error")
	}
}

func TestScheduler_PeriodicJobRuns(t *testing.T) {
	s := NewScheduler(5*time.Millisecond, zap.NewNop())
	var runs atomic.Int32
	err := s.Register(Job{
		Name:  "ticker",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times, want >= 2", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	statuses := s.Status()
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].Runs < 2 {
		t.Errorf("status runs = %d, want >= 2", statuses[0].Runs)
	}
	if statuses[0].LastRun == nil {
		t.Error("status last run is nil")
	}
	if statuses[0].LastError != "" {
		t.Errorf("status last error = %q, want empty", statuses[0].LastError)
	}
}

func TestScheduler_JobFailureIsolated(t *testing.T) {
	s := NewScheduler(5*time.Millisecond, zap.NewNop())
	var healthy atomic.Int32
	if err := s.Register(Job{
		Name:  "failing",
		Every: 10 * time.Millisecond,
		Run:   func(context.Context) error { return errors.New("boom") },
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Register(Job{
		Name:  "panicking",
		Every: 10 * time.Millisecond,
		Run:   func(context.Context) error { panic("boom") },
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Register(Job{
		Name:  "healthy",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			healthy.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for healthy.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("healthy job ran %d times alongside failing siblings, want >= 2", healthy.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	for _, js := range s.Status() {
		switch js.Name {
		case "failing":
			if js.LastError == "" && js.Runs > 0 {
				t.Error("failing job recorded no error")
			}
		case "panicking":
			if js.LastError == "" && js.Runs > 0 {
				t.Error("panicking job recorded no error")
			}
		}
	}
}

func TestScheduler_MisfireGrace(t *testing.T) {
	s := NewScheduler(time.Second, zap.NewNop())

	var clock struct {
		sync.Mutex
		now time.Time
	}
	clock.now = time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return clock.now
	}
	setNow := func(t time.Time) {
		clock.Lock()
		clock.now = t
		clock.Unlock()
	}

	var runs atomic.Int32
	if err := s.Register(Job{
		Name:  "nightly",
		At:    "02:00",
		Grace: 6 * time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Within the grace window: runs despite being 3h late.
	setNow(time.Date(2026, 6, 1, 5, 0, 0, 0, time.UTC))
	s.dispatchDue()
	if runs.Load() != 1 {
		t.Fatalf("runs = %d after late dispatch within grace, want 1", runs.Load())
	}

	// Rescheduled for the next day.
	next := s.Status()[0].NextRun
	want := time.Date(2026, 6, 2, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}

	// Past the grace window: skipped, only rescheduled.
	setNow(time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC))
	s.dispatchDue()
	if runs.Load() != 1 {
		t.Errorf("runs = %d after out-of-grace dispatch, want still 1", runs.Load())
	}
	next = s.Status()[0].NextRun
	want = time.Date(2026, 6, 3, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next run = %v, want %v", next, want)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(time.Hour, zap.NewNop())
	var runs atomic.Int32
	if err := s.Register(Job{
		Name:  "on-demand",
		Every: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := s.RunNow(context.Background(), "on-demand"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}

	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("RunNow(unknown) = nil error")
	}
}
