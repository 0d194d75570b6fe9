package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDo_NeverExceedsCapacity(t *testing.T) {
	l := New(3)

	var current, maxSeen atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				n := current.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got > 3 {
		t.Errorf("observed %d concurrent holders, capacity 3", got)
	}
	if l.Peak() > 3 {
		t.Errorf("limiter peak %d exceeds capacity", l.Peak())
	}
	if l.Active() != 0 {
		t.Errorf("expected all slots released, %d active", l.Active())
	}
}

func TestDo_ReleasesOnError(t *testing.T) {
	l := New(1)
	want := errors.New("load failed")

	for i := 0; i < 3; i++ {
		if err := l.Do(context.Background(), func() error { return want }); err != want {
			t.Fatalf("expected fn error, got %v", err)
		}
	}
	if l.Active() != 0 {
		t.Errorf("slot leaked: %d active", l.Active())
	}
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	l := New(1)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = l.Do(context.Background(), func() error { panic("boom") })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Do(ctx, func() error { return nil }); err != nil {
		t.Fatalf("slot was not released after panic: %v", err)
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if l.Active() != 1 {
		t.Errorf("failed acquire must not count as active, got %d", l.Active())
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	if c := New(0).Capacity(); c != 1 {
		t.Errorf("expected capacity 1, got %d", c)
	}
}
