// Package batch runs a task over a list of items with bounded concurrency.
// Two scheduling modes are offered: a fixed worker pool fed by a queue, and
// all-settled chunks separated by a delay. Every item yields a tagged
// crawler.Result; failures and panics never abort the batch.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/dispatcher"
	"github.com/JakeFAU/pwa-discovery/internal/metrics"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	"github.com/JakeFAU/pwa-discovery/internal/queue/memory"
	"github.com/JakeFAU/pwa-discovery/internal/worker"
)

// Mode selects the scheduling strategy.
type Mode string

// Scheduling modes.
const (
	ModePool    Mode = "pool"
	ModeChunked Mode = "chunked"
)

// DefaultConcurrency applies when Options.Concurrency is not positive.
const DefaultConcurrency = 3

// Task processes one item. Returning a failed result and panicking are both
// recorded as a failure for that item only.
type Task[T, R any] func(ctx context.Context, item T) crawler.Result[R]

// Options configures a run.
type Options struct {
	// Op labels metrics, progress events and log lines.
	Op          string
	Mode        Mode
	Concurrency int
	// Delay separates chunks in chunked mode. No delay follows the last chunk.
	Delay time.Duration
	// ItemDelay is slept before each item in either mode.
	ItemDelay time.Duration
	// Limiter, when set, is waited on with the item key before each item.
	Limiter crawler.Limiter
	// Progress receives one ITEM_DONE event per item.
	Progress *progress.Reporter
	// OnChunk is called after each chunk (chunked) or item (pool) with the
	// number of items finished so far.
	OnChunk func(done, total int)
	Logger  *zap.Logger
}

// Report holds the per-item results in input order and the aggregate
// summary. Items never started because of cancellation are absent.
type Report[R any] struct {
	Results []crawler.Result[R]
	Summary crawler.Summary
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePool, ModeChunked:
		return Mode(s), nil
	case "":
		return ModeChunked, nil
	default:
		return "", fmt.Errorf("unknown batch mode %q (want pool or chunked)", s)
	}
}

// Run executes task over items and blocks until every started item has
// settled. key derives the rate-limit and reporting key for an item.
func Run[T, R any](ctx context.Context, opts Options, items []T, key func(T) string, task Task[T, R]) Report[R] {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if key == nil {
		key = func(item T) string { return fmt.Sprint(item) }
	}

	r := &runner[T, R]{
		opts:    opts,
		items:   items,
		key:     key,
		task:    task,
		results: make([]crawler.Result[R], len(items)),
		started: make([]bool, len(items)),
	}
	if opts.Mode == ModePool {
		r.runPool(ctx)
	} else {
		r.runChunked(ctx)
	}
	return r.report(ctx)
}

type runner[T, R any] struct {
	opts    Options
	items   []T
	key     func(T) string
	task    Task[T, R]
	results []crawler.Result[R]
	started []bool

	mu      sync.Mutex
	done    int
	running crawler.Summary
}

func (r *runner[T, R]) runChunked(ctx context.Context) {
	total := len(r.items)
	size := r.opts.Concurrency
	for start := 0; start < total; start += size {
		if ctx.Err() != nil {
			return
		}
		end := min(start+size, total)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				r.execute(ctx, idx)
			}(i)
		}
		wg.Wait()

		r.chunkDone(end - start)
		if end < total && r.opts.Delay > 0 {
			if err := sleep(ctx, r.opts.Delay); err != nil {
				return
			}
		}
	}
}

func (r *runner[T, R]) runPool(ctx context.Context) {
	total := len(r.items)
	if total == 0 {
		return
	}
	q := memory.NewQueue[T](r.opts.Concurrency)
	workers := make([]*worker.Worker[T], min(r.opts.Concurrency, total))
	handler := func(ctx context.Context, item crawler.QueueItem[T]) {
		if r.execute(ctx, item.Index) {
			r.chunkDone(1)
		}
	}
	for i := range workers {
		workers[i] = worker.New(i, crawler.Queue[T](q), handler, worker.Config{Op: r.opts.Op},
			r.opts.Logger.Named("worker"))
	}
	d := dispatcher.New(crawler.Queue[T](q), workers)

	go func() {
		defer q.Close()
		for i, item := range r.items {
			err := d.Enqueue(ctx, crawler.QueueItem[T]{Index: i, Key: r.key(item), Value: item})
			if err != nil {
				r.opts.Logger.Debug("stopped enqueueing", zap.Int("enqueued", i), zap.Error(err))
				return
			}
		}
	}()
	d.Run(ctx)
}

// execute runs one item into its slot. It reports false when the item never
// started because the context ended first.
func (r *runner[T, R]) execute(ctx context.Context, idx int) bool {
	if ctx.Err() != nil {
		return false
	}
	item := r.items[idx]
	key := r.key(item)

	if r.opts.ItemDelay > 0 {
		if err := sleep(ctx, r.opts.ItemDelay); err != nil {
			return false
		}
	}
	if r.opts.Limiter != nil {
		if err := r.opts.Limiter.Wait(ctx, key); err != nil {
			return false
		}
	}

	start := time.Now()
	res := r.invoke(ctx, item)
	res.Index = idx
	res.Key = key
	res.Dur = time.Since(start)
	r.results[idx] = res
	r.started[idx] = true

	metrics.ObserveBatchItem(r.opts.Op, string(res.Status))
	r.opts.Progress.Emit(progress.Event{
		Stage:  progress.StageItemDone,
		Key:    key,
		Status: res.Status,
		Reason: res.Reason,
		Dur:    res.Dur,
		Note:   res.Err,
	})
	r.mu.Lock()
	r.running.Record(res.Status, res.Reason)
	r.mu.Unlock()
	return true
}

func (r *runner[T, R]) invoke(ctx context.Context, item T) (res crawler.Result[R]) {
	defer func() {
		if p := recover(); p != nil {
			r.opts.Logger.Error("batch task panicked",
				zap.String("op", r.opts.Op),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			var zero R
			res = crawler.Fail(zero, fmt.Errorf("panic: %v", p))
		}
	}()
	res = r.task(ctx, item)
	if res.Status == "" {
		res.Status = crawler.StatusChecked
	}
	return res
}

func (r *runner[T, R]) chunkDone(n int) {
	r.mu.Lock()
	r.done += n
	done := r.done
	snapshot := r.running
	r.mu.Unlock()

	total := len(r.items)
	r.opts.Logger.Info(fmt.Sprintf("Progress: %d/%d", done, total),
		zap.String("op", r.opts.Op),
		zap.Int("added", snapshot.Added),
		zap.Int("updated", snapshot.Updated),
		zap.Int("skipped", snapshot.Skipped),
		zap.Int("failed", snapshot.Failed),
	)
	if r.opts.OnChunk != nil {
		r.opts.OnChunk(done, total)
	}
}

func (r *runner[T, R]) report(ctx context.Context) Report[R] {
	rep := Report[R]{
		Results: make([]crawler.Result[R], 0, len(r.items)),
		Summary: crawler.Summary{Total: len(r.items)},
	}
	for i, ok := range r.started {
		if !ok {
			continue
		}
		res := r.results[i]
		rep.Results = append(rep.Results, res)
		rep.Summary.Record(res.Status, res.Reason)
	}
	if ctx.Err() != nil && rep.Summary.Processed < rep.Summary.Total {
		rep.Summary.Canceled = true
	}
	return rep
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("batch pacing: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
