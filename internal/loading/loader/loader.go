// Package loader loads a single resource with a per-attempt timeout and
// exponential-backoff retries.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/loading/metrics"
	"github.com/vietddude/warmup/internal/loading/timeout"
)

// FetchFunc loads one resource.
type FetchFunc func(ctx context.Context, id domain.ResourceID) error

// Backoff supplies the wait before the retry that follows a failed attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config defines retry behavior.
type Config struct {
	PerItemTimeout time.Duration // 0 = no per-attempt deadline
	MaxRetries     int           // retries after the first attempt
}

// Loader resolves resources to outcomes. It is safe for concurrent use.
type Loader struct {
	cfg     Config
	fetch   FetchFunc
	backoff Backoff
	sleep   Sleeper
	log     *slog.Logger
}

// New creates a loader. A nil logger falls back to slog.Default().
func New(cfg Config, fetch FetchFunc, backoff Backoff, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Loader{
		cfg:     cfg,
		fetch:   fetch,
		backoff: backoff,
		sleep:   SleepContext,
		log:     log.With("component", "loader"),
	}
}

// SetSleeper replaces the backoff wait, mainly for tests.
func (l *Loader) SetSleeper(s Sleeper) {
	l.sleep = s
}

// MaxAttempts returns the upper bound of tries per resource.
func (l *Loader) MaxAttempts() int {
	return l.cfg.MaxRetries + 1
}

// Load tries the resource until it succeeds or retries run out. It never
// returns an error or panics: every failure is folded into a Failed outcome.
func (l *Loader) Load(ctx context.Context, index int, id domain.ResourceID) (outcome domain.LoadOutcome) {
	outcome = domain.LoadOutcome{Index: index, ResourceID: id}
	log := l.log.With("resource", id, "index", index)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: loader panicked: %v", domain.ErrUnexpected, r)
			log.Error("Resource loader crashed", "error", err)
			outcome.Status = domain.OutcomeFailed
			outcome.Err = err
		}
		metrics.LoadOutcomesTotal.WithLabelValues(string(outcome.Status)).Inc()
	}()

	var lastErr error
	attempt := 1
	for {
		log.Debug("Loading resource", "attempt", attempt, "max_attempts", l.MaxAttempts())

		err := l.try(ctx, id, attempt, &outcome)
		if err == nil {
			log.Info("Resource loaded", "attempt", attempt)
			outcome.Status = domain.OutcomeSucceeded
			return outcome
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt > l.cfg.MaxRetries {
			break
		}

		delay := l.backoff.Delay(attempt)
		log.Warn("Resource load failed, retry scheduled",
			"attempt", attempt,
			"retry", fmt.Sprintf("%d/%d", attempt, l.cfg.MaxRetries),
			"backoff", delay,
			"error", err,
		)
		metrics.LoadRetriesTotal.Inc()

		if err := l.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("backoff interrupted: %w", err)
			break
		}
		attempt++
	}

	outcome.Status = domain.OutcomeFailed
	outcome.Err = &domain.LoadError{
		ResourceID: id,
		Attempt:    attempt,
		Kind:       domain.ErrResourceFinalFailure,
		Err:        attemptCause(lastErr),
	}
	log.Error("Resource failed", "attempts", attempt, "error", lastErr)
	return outcome
}

// try runs one attempt and records it on the outcome.
func (l *Loader) try(ctx context.Context, id domain.ResourceID, attempt int, outcome *domain.LoadOutcome) error {
	started := time.Now()
	err := timeout.Run(ctx, func(ctx context.Context) error {
		return l.fetch(ctx, id)
	}, l.cfg.PerItemTimeout)
	elapsed := time.Since(started)

	result := domain.AttemptResultOf(err)
	rec := domain.LoadAttempt{
		ResourceID: id,
		Number:     attempt - 1,
		StartedAt:  started,
		Duration:   elapsed,
		Result:     result,
	}

	metrics.LoadAttemptsTotal.WithLabelValues(string(result)).Inc()
	metrics.LoadAttemptLatency.WithLabelValues(string(result)).Observe(elapsed.Seconds())

	if err == nil {
		outcome.Attempts = append(outcome.Attempts, rec)
		return nil
	}

	kind := domain.ErrResourceOperation
	if errors.Is(err, domain.ErrTimeout) {
		kind = domain.ErrTimeout
	}
	loadErr := &domain.LoadError{ResourceID: id, Attempt: attempt, Kind: kind, Err: err}
	rec.Error = loadErr.Error()
	outcome.Attempts = append(outcome.Attempts, rec)
	return loadErr
}

// attemptCause strips the per-attempt resource prefix from err, keeping the
// attempt kind so errors.Is still matches it.
func attemptCause(err error) error {
	var le *domain.LoadError
	if !errors.As(err, &le) {
		return err
	}
	if errors.Is(le.Err, le.Kind) {
		return le.Err
	}
	return fmt.Errorf("%w: %w", le.Kind, le.Err)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
