package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
)

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

// RunRepo keeps run records in process memory. Records are copied in and out.
type RunRepo struct {
	runs map[string]domain.Record
	mu   sync.RWMutex
}

func NewRunRepo() *RunRepo {
	return &RunRepo{runs: make(map[string]domain.Record)}
}

func (r *RunRepo) Save(ctx context.Context, record domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.FailedResources = slices.Clone(record.FailedResources)
	r.runs[record.ID] = record
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	return copyRecord(rec), nil
}

func (r *RunRepo) Latest(ctx context.Context) (*domain.Record, error) {
	list, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, storage.ErrRunNotFound
	}
	return list[0], nil
}

func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Record, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, copyRecord(rec))
	}
	slices.SortFunc(out, func(a, b *domain.Record) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RunRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.runs {
		if rec.FinishedAt.Before(t) {
			delete(r.runs, id)
			n++
		}
	}
	return n, nil
}

func copyRecord(rec domain.Record) *domain.Record {
	rec.FailedResources = slices.Clone(rec.FailedResources)
	return &rec
}
