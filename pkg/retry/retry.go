package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/songforge/songforge/pkg/provider"
)

// Policy is a parameterized polling loop shared by every vendor client
// that needs to wait on an asynchronous job.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Backoff     []time.Duration
}

// Default polls for up to five minutes.
var Default = Policy{
	MaxAttempts: 60,
	Interval:    5 * time.Second,
}

// Do calls fn until it reports done, returns an error, or MaxAttempts
// is exhausted. It waits Interval between attempts, or the matching
// Backoff step when one is configured. Exhaustion returns
// provider.ErrTimeout.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) (bool, error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		wait := p.Interval
		if len(p.Backoff) > 0 {
			idx := i
			if idx >= len(p.Backoff) {
				idx = len(p.Backoff) - 1
			}
			wait = p.Backoff[idx]
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("retry: %w", ctx.Err())
			case <-t.C:
			}
		}
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return provider.ErrTimeout
}
