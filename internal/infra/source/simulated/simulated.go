// Package simulated provides in-process collaborators with configurable
// delays and failure rates, for demos and load tests of the pipeline.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vietddude/warmup/internal/core/config"
	"github.com/vietddude/warmup/internal/core/domain"
)

var (
	ErrManifestUnavailable = errors.New("simulated manifest failure")
	ErrResourceUnavailable = errors.New("simulated resource failure")
)

// Source fakes a remote manifest, resource store and init hook.
type Source struct {
	cfg config.SimulatedConfig
	log *slog.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a simulated source seeded from the runtime.
func New(cfg config.SimulatedConfig, log *slog.Logger) *Source {
	return NewWithSource(cfg, rand.NewPCG(rand.Uint64(), rand.Uint64()), log)
}

// NewWithSource creates a simulated source with a fixed random source.
func NewWithSource(cfg config.SimulatedConfig, src rand.Source, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		cfg:  cfg,
		log:  log.With("component", "simulated_source"),
		rand: rand.New(src),
	}
}

// LoadManifest waits ManifestDelay and returns file-0..file-N.
func (s *Source) LoadManifest(ctx context.Context) (domain.Manifest, error) {
	s.log.Info("Load manifest start", "delay", s.cfg.ManifestDelay)
	if err := sleep(ctx, s.cfg.ManifestDelay); err != nil {
		return nil, err
	}
	if s.fails() {
		s.log.Warn("Load manifest failed")
		return nil, ErrManifestUnavailable
	}

	manifest := make(domain.Manifest, s.cfg.ResourceCount)
	for i := range manifest {
		manifest[i] = fmt.Sprintf("file-%d", i)
	}
	s.log.Info("Load manifest success", "resources", len(manifest))
	return manifest, nil
}

// LoadResource waits a random delay in [MinLoadDelay, MaxLoadDelay) and
// fails with probability FailureRate.
func (s *Source) LoadResource(ctx context.Context, id domain.ResourceID) error {
	delay := s.loadDelay()
	s.log.Debug("Load resource start", "resource", id, "delay", delay)

	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if s.fails() {
		s.log.Debug("Load resource failed", "resource", id)
		return fmt.Errorf("%w: %s", ErrResourceUnavailable, id)
	}
	s.log.Debug("Load resource success", "resource", id)
	return nil
}

// Initialize waits InitDelay and always succeeds.
func (s *Source) Initialize(ctx context.Context) error {
	s.log.Info("Initialize start", "delay", s.cfg.InitDelay)
	if err := sleep(ctx, s.cfg.InitDelay); err != nil {
		return err
	}
	s.log.Info("Initialize success")
	return nil
}

func (s *Source) loadDelay() time.Duration {
	span := s.cfg.MaxLoadDelay - s.cfg.MinLoadDelay
	if span <= 0 {
		return s.cfg.MinLoadDelay
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MinLoadDelay + time.Duration(s.rand.Int64N(int64(span)))
}

func (s *Source) fails() bool {
	if s.cfg.FailureRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64() < s.cfg.FailureRate
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
