package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Lock serializes calls and enforces a minimum wait between them.
type Lock interface {
	Lock(ctx context.Context) func()
}

type lock struct {
	wait time.Duration
	lck  sync.Mutex
	last time.Time
}

func New(wait time.Duration) Lock {
	return &lock{wait: wait}
}

func (l *lock) Lock(ctx context.Context) func() {
	l.lck.Lock()
	elapsed := time.Since(l.last)
	if elapsed < l.wait {
		t := time.NewTimer(l.wait - elapsed)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return func() {
		l.last = time.Now()
		l.lck.Unlock()
	}
}
