// Package timeout races an operation against a deadline.
//
// The wrapper gives an at-most-once observed result: when the deadline wins, the
// caller gets a timeout immediately and the operation is abandoned, not stopped.
// The abandoned goroutine keeps running under the caller's context until it
// returns on its own, so its work may outlive its consumer. Operations that
// honour ctx stop when the whole run is cancelled.
package timeout

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
)

// Operation is a unit of work that may block.
type Operation func(ctx context.Context) error

// Error reports that an operation exceeded its deadline.
type Error struct {
	After time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation timed out after %.1fs", e.After.Seconds())
}

func (e *Error) Unwrap() error {
	return domain.ErrTimeout
}

// Run executes op and waits for it, but for no longer than deadline.
// The operation's own error is returned unchanged. A deadline <= 0 waits forever.
// If ctx ends first, ctx.Err() is returned.
func Run(ctx context.Context, op Operation, deadline time.Duration) error {
	// Buffered so an orphaned operation can always deliver and exit.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: operation panicked: %v", domain.ErrUnexpected, r)
			}
		}()
		done <- op(ctx)
	}()

	var expired <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-expired:
		return &Error{After: deadline}
	case <-ctx.Done():
		return ctx.Err()
	}
}
