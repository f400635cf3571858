package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
// Callers should surface it as back-pressure instead of blocking.
var ErrQueueFull = errors.New("pipeline: queue is full")

// Worker drains a bounded queue of song IDs through the pipeline with a
// fixed number of concurrent runs.
type Worker struct {
	pipeline    *Pipeline
	queue       chan string
	concurrency int
}

func NewWorker(p *Pipeline, concurrency, queueSize int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 32
	}
	return &Worker{
		pipeline:    p,
		queue:       make(chan string, queueSize),
		concurrency: concurrency,
	}
}

// Enqueue submits a song for processing without blocking.
func (w *Worker) Enqueue(songID string) error {
	select {
	case w.queue <- songID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the current backlog length.
func (w *Worker) Pending() int {
	return len(w.queue)
}

// Run processes queued songs until the context is cancelled, then waits
// for in-flight runs to finish. Jobs still queued at shutdown remain
// pending in the store and can be re-enqueued on the next start.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case songID := <-w.queue:
					if err := w.pipeline.Run(ctx, songID); err != nil {
						log.Printf("pipeline: song %s failed: %v\n", songID, err)
					}
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}
