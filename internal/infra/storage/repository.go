package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run record doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository stores finished run summaries. Only terminal results are kept;
// retry state never outlives its run.
type RunRepository interface {
	// Save stores a finished run, replacing any record with the same ID
	Save(ctx context.Context, record domain.Record) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*domain.Record, error)

	// Latest retrieves the most recently started run
	Latest(ctx context.Context) (*domain.Record, error)

	// List returns up to limit runs, newest first. limit <= 0 means all
	List(ctx context.Context, limit int) ([]*domain.Record, error)

	// DeleteOlderThan removes runs that finished before t and returns how many went
	DeleteOlderThan(ctx context.Context, t time.Time) (int, error)
}
