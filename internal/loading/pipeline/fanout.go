package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/loading/limiter"
	"github.com/vietddude/warmup/internal/loading/loader"
	"github.com/vietddude/warmup/internal/loading/metrics"
)

// loadAll starts one loader per manifest entry behind a fresh limiter and
// waits for every one of them. Siblings are never cancelled by a failure.
// Each goroutine writes only its own pre-allocated slot.
func (o *Orchestrator) loadAll(
	ctx context.Context,
	manifest domain.Manifest,
	summary *domain.RunSummary,
	log *slog.Logger,
) {
	lim := limiter.New(o.cfg.MaxConcurrency)
	ld := loader.New(o.cfg.Loader, o.fetcher.LoadResource, o.cfg.Backoff, log)

	o.mu.Lock()
	if o.sleeper != nil {
		ld.SetSleeper(o.sleeper)
	}
	o.mu.Unlock()

	outcomes := make([]domain.LoadOutcome, len(manifest))

	log.Info("Loading resources",
		"resources", len(manifest),
		"max_concurrency", lim.Capacity(),
		"max_attempts", ld.MaxAttempts(),
	)

	var g errgroup.Group
	for i, id := range manifest {
		g.Go(func() error {
			err := lim.Do(ctx, func() error {
				metrics.ActiveLoaders.Inc()
				defer metrics.ActiveLoaders.Dec()
				outcomes[i] = ld.Load(ctx, i, id)
				return nil
			})
			if err != nil {
				// The run ended before a slot opened up.
				outcomes[i] = domain.LoadOutcome{
					Index:      i,
					ResourceID: id,
					Status:     domain.OutcomeFailed,
					Err: &domain.LoadError{
						ResourceID: id,
						Kind:       domain.ErrResourceFinalFailure,
						Err:        err,
					},
				}
				log.Error("Resource never started", "resource", id, "index", i, "attempt", 0, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Outcomes = outcomes
	summary.Tally()

	if summary.Failed > 0 {
		log.Error("Resource loading finished with failures",
			"failed", summary.Failed,
			"succeeded", summary.Succeeded,
			"total", summary.Total,
			"failed_resources", summary.FailedResources(),
			"peak_concurrency", lim.Peak(),
		)
		return
	}
	log.Info("All resources loaded", "total", summary.Total, "peak_concurrency", lim.Peak())
}

// finish finalizes the summary, records metrics, persists it, and notifies observers.
func (o *Orchestrator) finish(ctx context.Context, summary *domain.RunSummary, log *slog.Logger) {
	summary.FinishedAt = time.Now()
	if summary.Outcomes != nil {
		summary.Tally()
	}

	metrics.RunsTotal.WithLabelValues(string(summary.State)).Inc()
	metrics.RunDuration.Observe(summary.Duration().Seconds())
	metrics.LastRunFailedResources.Set(float64(summary.Failed))

	attrs := []any{
		"state", summary.State,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"initialization_ran", summary.InitializationRan,
		"duration", summary.Duration().Round(time.Millisecond),
	}
	switch {
	case summary.State == domain.RunStateCompleted && summary.Failed == 0 && summary.InitializationRan:
		log.Info("All steps finished", attrs...)
	case summary.State == domain.RunStateCompleted:
		log.Warn("Run finished with failures", attrs...)
	default:
		if summary.Err != nil {
			attrs = append(attrs, "error", summary.Err)
		}
		if summary.InitErr != nil {
			attrs = append(attrs, "init_error", summary.InitErr)
		}
		log.Error("Run did not complete", attrs...)
	}

	o.mu.Lock()
	repo := o.repo
	observers := append([]func(*domain.RunSummary){}, o.observers...)
	o.mu.Unlock()

	if repo != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := repo.Save(saveCtx, summary.Record()); err != nil {
			log.Error("Failed to save run summary", "error", err)
		}
	}

	for _, fn := range observers {
		fn(summary)
	}
}
