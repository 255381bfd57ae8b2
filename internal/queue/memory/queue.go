// Package memory provides the in-process queue that feeds the batch worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue[T any] struct {
	ch      chan crawler.QueueItem[T]
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		ch: make(chan crawler.QueueItem[T], capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
// Enqueueing after Close is an error.
func (q *Queue[T]) Enqueue(ctx context.Context, item crawler.QueueItem[T]) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. Buffered items
// are still delivered after Close; crawler.ErrQueueClosed follows once drained.
func (q *Queue[T]) Dequeue(ctx context.Context) (crawler.QueueItem[T], error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem[T]{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.QueueItem[T]{}, crawler.ErrQueueClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel. Only the producer may call it, after
// its last Enqueue has returned.
func (q *Queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
