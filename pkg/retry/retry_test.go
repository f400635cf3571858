package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/songforge/songforge/pkg/provider"
)

func TestDoSucceeds(t *testing.T) {
	p := Policy{MaxAttempts: 5, Interval: time.Millisecond}
	var calls int
	err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3, Interval: time.Millisecond}
	var calls int
	err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, provider.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoError(t *testing.T) {
	p := Policy{MaxAttempts: 5, Interval: time.Millisecond}
	want := errors.New("boom")
	var calls int
	err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestDoCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 10, Interval: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(ctx context.Context) (bool, error) {
		t.Fatal("fn should not be called")
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestDoBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 4, Interval: time.Minute, Backoff: []time.Duration{0, 0, 0}}
	var calls int
	err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, provider.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	// The last backoff step repeats once the slice runs out.
	if calls != 4 {
		t.Errorf("got %d calls, want 4", calls)
	}
}
