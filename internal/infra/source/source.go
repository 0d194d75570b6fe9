// Package source builds the manifest, resource and initialization
// collaborators a pipeline run talks to.
package source

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/warmup/internal/core/config"
	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/source/filesource"
	"github.com/vietddude/warmup/internal/infra/source/httpsource"
	"github.com/vietddude/warmup/internal/infra/source/simulated"
	"github.com/vietddude/warmup/internal/loading/pipeline"
)

// Set groups the three collaborators of a run.
type Set struct {
	Manifest    pipeline.ManifestSource
	Fetcher     pipeline.ResourceFetcher
	Initializer pipeline.Initializer
	close       func() error
}

// Close releases whatever the backend holds open.
func (s *Set) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// New creates the collaborators selected by cfg.Type.
func New(cfg config.SourceConfig, log *slog.Logger) (*Set, error) {
	switch cfg.Type {
	case config.SourceSimulated, "":
		src := simulated.New(cfg.Simulated, log)
		return &Set{Manifest: src, Fetcher: src, Initializer: src}, nil

	case config.SourceFile:
		src := filesource.New(cfg.ManifestPath, cfg.RootDir)
		return &Set{Manifest: src, Fetcher: src, Initializer: src}, nil

	case config.SourceHTTP:
		src := httpsource.New(httpsource.Config{
			ManifestURL:     cfg.ManifestURL,
			ResourceBaseURL: cfg.ResourceBaseURL,
			InitURL:         cfg.InitURL,
			Timeout:         cfg.HTTPTimeout,
		})
		return &Set{Manifest: src, Fetcher: src, Initializer: src, close: src.Close}, nil

	default:
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrUnexpected, cfg.Type)
	}
}
