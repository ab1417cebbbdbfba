package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunOnceUsesClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewRunner(zerolog.Nop(), func() time.Time { return fixed })

	var got time.Time
	r.Add(Task{Name: "reaper", Interval: time.Hour, Run: func(_ context.Context, now time.Time) error {
		got = now
		return nil
	}})

	if err := r.RunOnce(context.Background(), "reaper"); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fixed) {
		t.Errorf("now = %v, want %v", got, fixed)
	}
}

func TestRunOnceErrors(t *testing.T) {
	r := NewRunner(zerolog.Nop(), nil)
	boom := errors.New("boom")
	r.Add(Task{Name: "fails", Run: func(context.Context, time.Time) error { return boom }})

	if err := r.RunOnce(context.Background(), "fails"); !errors.Is(err, boom) {
		t.Errorf("RunOnce() error = %v", err)
	}
	if err := r.RunOnce(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestStartTicksUntilStop(t *testing.T) {
	r := NewRunner(zerolog.Nop(), nil)
	var runs, disabled int32
	r.Add(Task{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context, time.Time) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})
	r.Add(Task{Name: "off", Interval: 0, Run: func(context.Context, time.Time) error {
		atomic.AddInt32(&disabled, 1)
		return nil
	}})

	r.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	after := atomic.LoadInt32(&runs)
	if after < 3 {
		t.Fatalf("task ran %d times, want at least 3", after)
	}
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&runs) != after {
		t.Error("task kept running after Stop")
	}
	if atomic.LoadInt32(&disabled) != 0 {
		t.Error("zero-interval task should not be scheduled")
	}

	r.Stop()
}
