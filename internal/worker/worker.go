package worker

import (
	"context"
	"log/slog"
	"sync"
)

type ProcessFunc[J any] func(ctx context.Context, job J) error

// WorkerPool runs jobs on a fixed number of goroutines fed by a bounded queue.
type WorkerPool[J any] struct {
	numWorkers int
	jobs       chan J
	processor  ProcessFunc[J]
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool[J any](numWorkers int, bufferSize int, processor ProcessFunc[J]) *WorkerPool[J] {
	return &WorkerPool[J]{
		numWorkers: numWorkers,
		jobs:       make(chan J, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool[J]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool[J]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil {
				slog.Error("job failed", "worker", id, "error", err)
			}
		}
	}
}

// Submit blocks until the job is queued, ctx ends or the pool is stopped.
func (wp *WorkerPool[J]) Submit(ctx context.Context, job J) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}

	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySubmit queues the job only if there is room right now.
func (wp *WorkerPool[J]) TrySubmit(job J) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}

	select {
	case wp.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop rejects new jobs, lets workers drain the queue and waits for them.
func (wp *WorkerPool[J]) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
}
