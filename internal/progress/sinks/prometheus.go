package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/pwa-discovery/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns the collectors
// for runs started/completed/running and per-op item outcomes.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	checkpoints   *prometheus.CounterVec

	items        *prometheus.CounterVec
	skips        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwacrawler_runs_started_total",
			Help: "Total batch runs that have started.",
		}, []string{"op"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwacrawler_runs_completed_total",
			Help: "Total batch runs completed partitioned by op and result.",
		}, []string{"op", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pwacrawler_runs_running",
			Help: "Current number of running batch runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pwacrawler_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"op", "result"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwacrawler_run_checkpoints_total",
			Help: "Checkpoints written by long-running runs.",
		}, []string{"op"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwacrawler_run_items_total",
			Help: "Run item outcomes partitioned by op and status.",
		}, []string{"op", "status"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pwacrawler_run_skips_total",
			Help: "Skipped run items partitioned by op and reason.",
		}, []string{"op", "reason"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pwacrawler_run_item_duration_seconds",
			Help:    "Per-item processing time partitioned by op.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 45},
		}, []string{"op"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.checkpoints,
		s.items,
		s.skips,
		s.itemDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(evt.Op).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunCheckpoint:
		s.checkpoints.WithLabelValues(evt.Op).Inc()
	case progress.StageRunDone:
		s.completeRun(evt, "success")
	case progress.StageRunError:
		result := "error"
		if evt.Note == progress.NoteCanceled {
			result = "canceled"
		}
		s.completeRun(evt, result)
	case progress.StageItemDone:
		s.items.WithLabelValues(evt.Op, string(evt.Status)).Inc()
		if evt.Reason != "" {
			s.skips.WithLabelValues(evt.Op, string(evt.Reason)).Inc()
		}
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(evt.Op).Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(evt.Op, result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(evt.Op, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
