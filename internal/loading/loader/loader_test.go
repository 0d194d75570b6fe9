package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/loading/backoff"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

// flakyFetcher fails until the given attempt number, then succeeds.
// succeedOn <= 0 never succeeds.
type flakyFetcher struct {
	calls     atomic.Int32
	succeedOn int32
}

func (f *flakyFetcher) Fetch(ctx context.Context, id domain.ResourceID) error {
	n := f.calls.Add(1)
	if f.succeedOn > 0 && n >= f.succeedOn {
		return nil
	}
	return errors.New("load file failed: " + id)
}

func newTestLoader(t *testing.T, maxRetries int, fetch FetchFunc) (*Loader, *recordingSleeper, *backoff.Policy) {
	t.Helper()
	policy := backoff.Default()
	l := New(Config{PerItemTimeout: time.Second, MaxRetries: maxRetries}, fetch, policy, discard)
	s := &recordingSleeper{}
	l.SetSleeper(s.Sleep)
	return l, s, policy
}

func TestLoad_AlwaysFailing(t *testing.T) {
	f := &flakyFetcher{}
	l, s, _ := newTestLoader(t, 3, f.Fetch)

	out := l.Load(context.Background(), 7, "file-7")

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if got := f.calls.Load(); got != 4 {
		t.Errorf("expected maxRetries+1 = 4 attempts, got %d", got)
	}
	if out.AttemptCount() != 4 {
		t.Errorf("expected 4 recorded attempts, got %d", out.AttemptCount())
	}
	if len(s.delays) != 3 {
		t.Errorf("expected 3 backoff waits, got %d", len(s.delays))
	}
	if !errors.Is(out.Err, domain.ErrResourceFinalFailure) {
		t.Errorf("expected ErrResourceFinalFailure, got %v", out.Err)
	}
	if !errors.Is(out.Err, domain.ErrResourceOperation) {
		t.Errorf("expected last cause to be an operation error, got %v", out.Err)
	}
	if out.Index != 7 || out.ResourceID != "file-7" {
		t.Errorf("outcome misattributed: %+v", out)
	}
	if n := strings.Count(out.ErrorMessage(), `resource "file-7"`); n != 1 {
		t.Errorf("expected resource prefix once in %q, got %d", out.ErrorMessage(), n)
	}
}

func TestLoad_SucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= 4; k++ {
		f := &flakyFetcher{succeedOn: int32(k)}
		l, s, policy := newTestLoader(t, 3, f.Fetch)

		out := l.Load(context.Background(), 0, "file-0")

		if !out.Succeeded() {
			t.Fatalf("k=%d: expected success, got %v", k, out.Err)
		}
		if got := int(f.calls.Load()); got != k {
			t.Errorf("k=%d: expected %d attempts, got %d", k, k, got)
		}
		if len(s.delays) != k-1 {
			t.Fatalf("k=%d: expected %d waits, got %d", k, k-1, len(s.delays))
		}
		// The wait before attempt i (i > 1) follows failed attempt i-1.
		for j, d := range s.delays {
			i := j + 2
			lo, hi := policy.Bounds(i - 1)
			if d < lo || d > hi {
				t.Errorf("k=%d: delay before attempt %d = %v, want in [%v, %v]", k, i, d, lo, hi)
			}
		}
		for n, a := range out.Attempts {
			if a.Number != n {
				t.Errorf("attempt numbers must be 0-based and sequential, got %d at %d", a.Number, n)
			}
		}
		if last := out.Attempts[len(out.Attempts)-1]; last.Result != domain.AttemptSuccess {
			t.Errorf("last attempt should be success, got %s", last.Result)
		}
	}
}

func TestLoad_ZeroRetries(t *testing.T) {
	f := &flakyFetcher{}
	l, s, _ := newTestLoader(t, 0, f.Fetch)

	out := l.Load(context.Background(), 0, "file-0")

	if out.Succeeded() || f.calls.Load() != 1 || len(s.delays) != 0 {
		t.Errorf("expected a single failed attempt, got calls=%d waits=%d", f.calls.Load(), len(s.delays))
	}
}

func TestLoad_TimeoutIsRetried(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls atomic.Int32
	fetch := func(ctx context.Context, id domain.ResourceID) error {
		if calls.Add(1) == 1 {
			<-release
		}
		return nil
	}

	l := New(Config{PerItemTimeout: 20 * time.Millisecond, MaxRetries: 2}, fetch, backoff.Default(), discard)
	l.SetSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	out := l.Load(context.Background(), 0, "slow")

	if !out.Succeeded() {
		t.Fatalf("expected success on retry, got %v", out.Err)
	}
	if out.AttemptCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", out.AttemptCount())
	}
	if out.Attempts[0].Result != domain.AttemptTimeout {
		t.Errorf("expected first attempt to time out, got %s", out.Attempts[0].Result)
	}
	if out.Attempts[0].Duration < 20*time.Millisecond {
		t.Errorf("timeout fired before deadline: %v", out.Attempts[0].Duration)
	}
}

func TestLoad_AllTimeouts(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fetch := func(ctx context.Context, id domain.ResourceID) error {
		<-release
		return nil
	}
	l := New(Config{PerItemTimeout: 5 * time.Millisecond, MaxRetries: 1}, fetch, backoff.Default(), discard)
	l.SetSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	out := l.Load(context.Background(), 0, "hung")

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, domain.ErrTimeout) {
		t.Errorf("expected timeout cause, got %v", out.Err)
	}
	if out.AttemptCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", out.AttemptCount())
	}
}

func TestLoad_CancelledDuringBackoff(t *testing.T) {
	f := &flakyFetcher{}
	l := New(Config{PerItemTimeout: time.Second, MaxRetries: 3}, f.Fetch, backoff.New(time.Hour, 1, 1, 0), discard)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out := l.Load(ctx, 0, "file-0")

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled in cause, got %v", out.Err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected no attempt after cancellation, got %d", f.calls.Load())
	}
}

func TestLoad_PanicBecomesFailure(t *testing.T) {
	l := New(Config{MaxRetries: 0}, func(ctx context.Context, id domain.ResourceID) error {
		panic("corrupt asset")
	}, backoff.Default(), discard)

	out := l.Load(context.Background(), 0, "bad")

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, domain.ErrUnexpected) {
		t.Errorf("expected ErrUnexpected in cause, got %v", out.Err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}
