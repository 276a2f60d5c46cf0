package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobLimiterAcquireRelease(t *testing.T) {
	l := NewJobLimiter(2, 50*time.Millisecond)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if got := l.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}

	// All slots taken: the wait times out.
	if err := l.Acquire(context.Background()); !errors.Is(err, ErrTooManyJobs) {
		t.Fatalf("third Acquire = %v, want ErrTooManyJobs", err)
	}

	l.Release()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}

	l.Release()
	l.Release()
	if got := l.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after drain = %d, want 0", got)
	}
}

func TestJobLimiterTryAcquire(t *testing.T) {
	l := NewJobLimiter(1, time.Second)

	if !l.TryAcquire() {
		t.Fatal("TryAcquire on empty limiter should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("TryAcquire on full limiter should fail")
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire after Release should succeed")
	}
	l.Release()
}

func TestJobLimiterCancelledContext(t *testing.T) {
	l := NewJobLimiter(1, time.Minute)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
}

func TestJobLimiterWaitForDrain(t *testing.T) {
	l := NewJobLimiter(1, time.Second)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain: %v", err)
	}
}

func TestJobLimiterStatus(t *testing.T) {
	l := NewJobLimiter(3, time.Second)
	l.TryAcquire()

	s := l.Status()
	if s.Active != 1 || s.Available != 2 || s.MaxConcurrent != 3 {
		t.Errorf("Status = %+v", s)
	}
	l.Release()
}
