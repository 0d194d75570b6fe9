package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/warmup/internal/infra/storage"
)

// Pruner deletes run summaries older than the retention period.
type Pruner struct {
	retention time.Duration
	runs      storage.RunRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, runs storage.RunRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		runs:      runs,
		log:       log.With("component", "pruner"),
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx ends.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes expired runs once and returns how many were deleted.
func (p *Pruner) Prune(ctx context.Context) int {
	threshold := p.now().Add(-p.retention)

	n, err := p.runs.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune run history", "threshold", threshold, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned run history", "deleted", n, "threshold", threshold)
	}
	return n
}
