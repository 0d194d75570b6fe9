// Package pipeline sequences a loading run: manifest, bounded fan-out of
// resource loaders, initialization, and terminal reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/warmup/internal/core/config"
	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
	"github.com/vietddude/warmup/internal/loading/backoff"
	"github.com/vietddude/warmup/internal/loading/loader"
)

// ErrDraining is returned by Trigger once the orchestrator is shutting down.
var ErrDraining = errors.New("orchestrator is draining")

// ManifestSource returns the list of resources to load.
type ManifestSource interface {
	LoadManifest(ctx context.Context) (domain.Manifest, error)
}

// ResourceFetcher loads one resource.
type ResourceFetcher interface {
	LoadResource(ctx context.Context, id domain.ResourceID) error
}

// Initializer runs once after loading.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Config holds the pipeline limits.
type Config struct {
	MaxConcurrency int
	Loader         loader.Config
	Backoff        loader.Backoff // nil = backoff.Default()
	RunTimeout     time.Duration  // 0 = none
	InitPolicy     config.InitPolicy
}

// ConfigFrom converts the file configuration.
func ConfigFrom(p config.PipelineConfig) Config {
	return Config{
		MaxConcurrency: p.MaxConcurrency,
		Loader: loader.Config{
			PerItemTimeout: p.PerItemTimeout,
			MaxRetries:     p.MaxRetries,
		},
		Backoff: backoff.New(
			p.BackoffBase,
			p.BackoffJitterMin,
			p.BackoffJitterMax,
			p.BackoffMaxDelay,
		),
		RunTimeout: p.RunTimeout,
		InitPolicy: p.InitPolicy,
	}
}

// Orchestrator owns the components of a run for its duration. Each Run gets
// its own limiter and summary, so concurrent runs do not interact.
type Orchestrator struct {
	cfg      Config
	manifest ManifestSource
	fetcher  ResourceFetcher
	init     Initializer
	log      *slog.Logger

	repo      storage.RunRepository
	starters  []func(*domain.RunSummary)
	observers []func(*domain.RunSummary)
	sleeper   loader.Sleeper
	newID     func() string

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New creates an orchestrator. A nil logger falls back to slog.Default().
func New(
	cfg Config,
	manifest ManifestSource,
	fetcher ResourceFetcher,
	init Initializer,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.Default()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.InitPolicy == "" {
		cfg.InitPolicy = config.InitAlways
	}
	return &Orchestrator{
		cfg:      cfg,
		manifest: manifest,
		fetcher:  fetcher,
		init:     init,
		log:      log.With("component", "pipeline"),
		newID:    uuid.NewString,
	}
}

// SetRepository stores finished run summaries in repo.
func (o *Orchestrator) SetRepository(repo storage.RunRepository) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.repo = repo
}

// OnRunStarted registers fn to receive every summary as its run begins.
// The summary is still being filled in and must not be retained.
func (o *Orchestrator) OnRunStarted(fn func(*domain.RunSummary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starters = append(o.starters, fn)
}

// OnRunFinished registers fn to receive every finalized summary.
func (o *Orchestrator) OnRunFinished(fn func(*domain.RunSummary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// SetSleeper replaces the backoff wait used by loaders, mainly for tests.
func (o *Orchestrator) SetSleeper(s loader.Sleeper) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sleeper = s
}

// Trigger starts a run in the background and returns immediately.
// Nothing is reported to the caller; results go to logs, observers and the repository.
// Once Drain has been called it starts nothing and returns ErrDraining.
func (o *Orchestrator) Trigger(ctx context.Context) error {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return ErrDraining
	}
	o.inflight.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("Triggered run crashed", "error", fmt.Errorf("%w: %v", domain.ErrUnexpected, r))
			}
		}()
		o.Run(ctx)
	}()
	return nil
}

// Drain stops accepting triggers and blocks until every triggered run has
// finished or ctx ends.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one full pipeline pass and returns its finalized summary.
// It never panics; failures are recorded in the summary and logged.
func (o *Orchestrator) Run(ctx context.Context) (summary *domain.RunSummary) {
	summary = domain.NewRunSummary(o.newID(), time.Now())
	log := o.log.With("run_id", summary.ID)

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			summary.Err = fmt.Errorf("%w: %v", domain.ErrUnexpected, r)
			log.Error("Unexpected error during run", "state", summary.State, "error", summary.Err)
			o.terminate(summary, domain.RunStateFailed, "panic", log)
		}
		o.finish(ctx, summary, log)
	}()

	log.Info("Run started")
	o.mu.Lock()
	starters := append([]func(*domain.RunSummary){}, o.starters...)
	o.mu.Unlock()
	for _, fn := range starters {
		fn(summary)
	}

	manifest, ok := o.loadManifest(ctx, summary, log)
	if !ok {
		return summary
	}

	if manifest.Len() == 0 {
		log.Warn("Manifest loaded but resource list is empty, skipping loading")
		o.transition(summary, domain.RunStateInitializing, "empty manifest", log)
	} else {
		o.transition(summary, domain.RunStateLoading, "", log)
		o.loadAll(ctx, manifest, summary, log)

		if err := ctx.Err(); err != nil {
			summary.Err = fmt.Errorf("run abandoned during loading: %w", err)
			log.Error("Run abandoned", "error", summary.Err)
			o.transition(summary, domain.RunStateAborted, err.Error(), log)
			return summary
		}
		o.transition(summary, domain.RunStateInitializing, "", log)
	}

	o.initialize(ctx, summary, log)
	return summary
}

func (o *Orchestrator) loadManifest(
	ctx context.Context,
	summary *domain.RunSummary,
	log *slog.Logger,
) (domain.Manifest, bool) {
	log.Info("Loading manifest")
	manifest, err := o.manifest.LoadManifest(ctx)
	if err != nil {
		summary.Err = fmt.Errorf("%w: %w", domain.ErrManifest, err)
		log.Error("Manifest load failed, run aborted", "error", err)

		state := domain.RunStateManifestFailed
		if ctx.Err() != nil {
			state = domain.RunStateAborted
		}
		o.transition(summary, state, err.Error(), log)
		return nil, false
	}

	log.Info("Manifest loaded", "resources", manifest.Len())
	return manifest.Clone(), true
}

func (o *Orchestrator) initialize(ctx context.Context, summary *domain.RunSummary, log *slog.Logger) {
	if o.cfg.InitPolicy == config.InitRequireAll && summary.Failed > 0 {
		log.Error("Resource loading finished with failures, skipping initialization",
			"failed", summary.Failed,
			"total", summary.Total,
		)
		o.transition(summary, domain.RunStateCompleted, "initialization skipped", log)
		return
	}

	log.Info("Initialization started")
	summary.InitializationRan = true
	if err := o.init.Initialize(ctx); err != nil {
		summary.InitErr = fmt.Errorf("%w: %w", domain.ErrInitialization, err)
		log.Error("Initialization failed", "error", err)

		state := domain.RunStateInitializationFailed
		if ctx.Err() != nil {
			state = domain.RunStateAborted
		}
		o.transition(summary, state, err.Error(), log)
		return
	}

	log.Info("Initialization finished")
	o.transition(summary, domain.RunStateCompleted, "", log)
}

// transition applies a state change. An invalid change is a programming error
// and ends the run in the failed state.
func (o *Orchestrator) transition(summary *domain.RunSummary, to domain.RunState, reason string, log *slog.Logger) {
	if err := summary.Transition(to, reason); err != nil {
		summary.Err = fmt.Errorf("%w: %w", domain.ErrUnexpected, err)
		log.Error("Invalid run state transition", "error", err)
		o.terminate(summary, domain.RunStateFailed, err.Error(), log)
		return
	}
	log.Debug("Run state changed", "state", to, "reason", reason)
}

// terminate forces a terminal state unless one was already reached.
func (o *Orchestrator) terminate(summary *domain.RunSummary, to domain.RunState, reason string, log *slog.Logger) {
	if summary.State.IsTerminal() {
		return
	}
	if err := summary.Transition(to, reason); err != nil {
		log.Warn("Forcing terminal state", "from", summary.State, "to", to)
		summary.State = to
	}
}
