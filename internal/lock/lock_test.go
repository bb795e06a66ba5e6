package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	tok, err := l.TryLock(ctx, "sweep:drain", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "sweep:drain", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second TryLock err = %v", err)
	}
	if _, err := l.TryLock(ctx, "sweep:scrape", time.Minute); err != nil {
		t.Fatalf("other key: %v", err)
	}

	// a stale token must not release the current holder
	if err := l.Unlock(ctx, "sweep:drain", "stale"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.TryLock(ctx, "sweep:drain", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatal("stale unlock released the lock")
	}

	if err := l.Unlock(ctx, "sweep:drain", tok); err != nil {
		t.Fatal(err)
	}
	if _, err := l.TryLock(ctx, "sweep:drain", time.Minute); err != nil {
		t.Fatalf("after unlock: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := l.TryLock(ctx, "sweep:scrape", time.Minute); err != nil {
		t.Fatalf("expired lock not reclaimed: %v", err)
	}
}

func TestRunReleases(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	called := false
	err := Run(ctx, l, "k", time.Minute, func(context.Context) error {
		called = true
		if err := Run(ctx, l, "k", time.Minute, func(context.Context) error { return nil }); !errors.Is(err, ErrNotAcquired) {
			t.Errorf("nested Run err = %v", err)
		}
		return errors.New("work failed")
	})
	if !called || err == nil || err.Error() != "work failed" {
		t.Fatalf("Run = %v, called = %v", err, called)
	}

	if _, err := l.TryLock(ctx, "k", time.Minute); err != nil {
		t.Errorf("lock not released after Run: %v", err)
	}
}

func TestWait(t *testing.T) {
	l := NewLocalLocker()
	tok, _ := l.TryLock(context.Background(), "k", time.Minute)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = l.Unlock(context.Background(), "k", tok)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Wait(ctx, l, "k", time.Minute, 5*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, err := Wait(short, l, "k", time.Minute, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait on held lock err = %v", err)
	}
}
