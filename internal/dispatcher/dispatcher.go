// Package dispatcher manages worker fan-out over the batch queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/worker"
)

// Dispatcher fans out queue work to a fixed pool of workers.
type Dispatcher[T any] struct {
	queue   crawler.Queue[T]
	workers []*worker.Worker[T]
}

// New creates a Dispatcher.
func New[T any](queue crawler.Queue[T], workers []*worker.Worker[T]) *Dispatcher[T] {
	return &Dispatcher[T]{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one has returned, either
// because the context finished or the queue was closed and drained.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker[T]) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, item crawler.QueueItem[T]) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
