package storage

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// SnapshotThrottle bounds the bandwidth consumed by snapshot copy jobs.
// Acquire blocks until n bytes of budget are available or ctx is done.
type SnapshotThrottle interface {
	Acquire(ctx context.Context, n int64) error
}

// ThroughputThrottle is a token-bucket SnapshotThrottle with a fixed
// bytes-per-second budget.
type ThroughputThrottle struct {
	limiter *rate.Limiter
}

// NewThroughputThrottle returns a throttle allowing bytesPerSecond of copy
// traffic, with a burst of one second's budget.
func NewThroughputThrottle(bytesPerSecond int64) (*ThroughputThrottle, error) {
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("%w: throttle rate %d must be positive", ErrInvalidArgument, bytesPerSecond)
	}
	return &ThroughputThrottle{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond)),
	}, nil
}

// Acquire blocks until n bytes of budget are available. Requests larger
// than one second's burst are split so they still make progress.
func (t *ThroughputThrottle) Acquire(ctx context.Context, n int64) error {
	for n > 0 {
		chunk := n
		if burst := int64(t.limiter.Burst()); chunk > burst {
			chunk = burst
		}
		// WaitN fails when ctx is done or when the remaining deadline
		// cannot cover the wait; either way the job must stop.
		if err := t.limiter.WaitN(ctx, int(chunk)); err != nil {
			return fmt.Errorf("%w: throttle wait: %v", ErrCancelled, err)
		}
		n -= chunk
	}
	return nil
}
