package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	ID                string         `db:"id"`
	StartedAt         time.Time      `db:"started_at"`
	FinishedAt        time.Time      `db:"finished_at"`
	State             string         `db:"state"`
	Total             int            `db:"total"`
	Succeeded         int            `db:"succeeded"`
	Failed            int            `db:"failed"`
	InitializationRan bool           `db:"initialization_ran"`
	InitError         string         `db:"init_error"`
	Error             string         `db:"error"`
	FailedResources   pq.StringArray `db:"failed_resources"`
}

func (r runRow) record() *domain.Record {
	return &domain.Record{
		ID:                r.ID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		State:             domain.RunState(r.State),
		Total:             r.Total,
		Succeeded:         r.Succeeded,
		Failed:            r.Failed,
		InitializationRan: r.InitializationRan,
		InitError:         r.InitError,
		Error:             r.Error,
		FailedResources:   []string(r.FailedResources),
	}
}

const selectRuns = `
	SELECT id, started_at, finished_at, state, total, succeeded, failed,
	       initialization_ran, init_error, error, failed_resources
	FROM pipeline_runs
`

// Save upserts a run.
func (r *RunRepo) Save(ctx context.Context, rec domain.Record) error {
	query := `
		INSERT INTO pipeline_runs (
			id, started_at, finished_at, state, total, succeeded, failed,
			initialization_ran, init_error, error, failed_resources
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			state = EXCLUDED.state,
			total = EXCLUDED.total,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			initialization_ran = EXCLUDED.initialization_ran,
			init_error = EXCLUDED.init_error,
			error = EXCLUDED.error,
			failed_resources = EXCLUDED.failed_resources
	`
	failed := rec.FailedResources
	if failed == nil {
		failed = []string{}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.StartedAt,
		rec.FinishedAt,
		string(rec.State),
		rec.Total,
		rec.Succeeded,
		rec.Failed,
		rec.InitializationRan,
		rec.InitError,
		rec.Error,
		pq.Array(failed),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get returns a run by ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Record, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, selectRuns+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.record(), nil
}

// Latest returns the most recently started run.
func (r *RunRepo) Latest(ctx context.Context) (*domain.Record, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, selectRuns+` ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return row.record(), nil
}

// List returns runs newest first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	var rows []runRow
	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &rows, selectRuns+` ORDER BY started_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, selectRuns+` ORDER BY started_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// DeleteOlderThan removes runs that finished before t.
func (r *RunRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE finished_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}
