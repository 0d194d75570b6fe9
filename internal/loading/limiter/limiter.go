// Package limiter bounds how many loaders may run at the same time.
package limiter

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a FIFO counting gate. The zero value is not usable; use New.
type Limiter struct {
	capacity int64
	sem      *semaphore.Weighted
	active   atomic.Int64
	peak     atomic.Int64
}

// New creates a limiter admitting at most capacity holders. capacity < 1 is treated as 1.
func New(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Acquire blocks until a slot is free or ctx ends. Every successful Acquire
// must be paired with exactly one Release; prefer Do.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	n := l.active.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release frees a slot held by a previous Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path,
// including a panic in fn, which is re-raised after release.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Capacity returns the maximum number of concurrent holders.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	return int(l.active.Load())
}

// Peak returns the highest number of slots ever held at once.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
