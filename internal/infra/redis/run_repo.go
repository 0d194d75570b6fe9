package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using Redis.
// Records are JSON strings; two sorted sets index them by start and finish time.
type RunRepo struct {
	c *Client
}

// NewRunRepo creates a new Redis-backed run repository.
func NewRunRepo(client *Client) *RunRepo {
	return &RunRepo{c: client}
}

// Save stores the record and indexes it.
func (r *RunRepo) Save(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.c.rdb.TxPipeline()
	pipe.Set(ctx, r.c.runKey(rec.ID), data, r.c.ttl)
	pipe.ZAdd(ctx, r.c.startedIndexKey(), redis.Z{
		Score:  float64(rec.StartedAt.UnixNano()),
		Member: rec.ID,
	})
	pipe.ZAdd(ctx, r.c.finishedIndexKey(), redis.Z{
		Score:  float64(rec.FinishedAt.UnixNano()),
		Member: rec.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get returns a run by ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Record, error) {
	data, err := r.c.rdb.Get(ctx, r.c.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &rec, nil
}

// Latest returns the most recently started run.
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

// List returns runs newest first. Index entries whose record expired are dropped.
func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.c.rdb.ZRevRange(ctx, r.c.startedIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	records := make([]*domain.Record, 0, len(ids))
	var stale []any
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if errors.Is(err, storage.ErrRunNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(stale) > 0 {
		pipe := r.c.rdb.TxPipeline()
		pipe.ZRem(ctx, r.c.startedIndexKey(), stale...)
		pipe.ZRem(ctx, r.c.finishedIndexKey(), stale...)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to drop expired runs from index: %w", err)
		}
	}
	return records, nil
}

// DeleteOlderThan removes runs that finished before t.
func (r *RunRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	ids, err := r.c.rdb.ZRangeByScore(ctx, r.c.finishedIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(t.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.c.runKey(id))
		members = append(members, id)
	}

	pipe := r.c.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, r.c.startedIndexKey(), members...)
	pipe.ZRem(ctx, r.c.finishedIndexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return len(ids), nil
}
