// Package worker implements the item execution loop of the batch pool.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/metrics"
)

// Handler processes one dequeued item. It must not panic; the batch runner
// wraps tasks with recovery before handing them to workers.
type Handler[T any] func(ctx context.Context, item crawler.QueueItem[T])

// Config controls Worker behavior.
type Config struct {
	// Op labels the active-worker gauge and log lines.
	Op string
}

// Worker consumes queue items and runs the handler on each.
type Worker[T any] struct {
	id      int
	queue   crawler.Queue[T]
	handler Handler[T]
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New[T any](id int, queue crawler.Queue[T], handler Handler[T], cfg Config, logger *zap.Logger) *Worker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker[T]{
		id:      id,
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed and drained.
func (w *Worker[T]) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Int("worker", w.id), zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued item",
			zap.Int("worker", w.id),
			zap.String("op", w.cfg.Op),
			zap.String("key", item.Key),
		)
		if w.handler != nil {
			w.handler(ctx, item)
		}
	}
}
