package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// StoreSink persists run progress via a store.RunRepository. Item outcomes
// are collapsed per run before writing to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order: run starts, collapsed item deltas, then
// completions. Repository errors are returned verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]*runDelta)
	var order []uuid.UUID
	var completions []progress.Event

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.Op, int64(evt.Total), evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageItemDone:
			delta := deltas[runID]
			if delta == nil {
				delta = &runDelta{}
				deltas[runID] = delta
				order = append(order, runID)
			}
			delta.record(evt)
		case progress.StageRunDone, progress.StageRunError:
			completions = append(completions, evt)
		}
	}

	for _, runID := range order {
		delta := deltas[runID]
		if err := s.repo.AddRunCounters(ctx, runID, delta.counters, delta.at); err != nil {
			return fmt.Errorf("add run counters: %w", err)
		}
	}

	for _, evt := range completions {
		status := store.RunSuccess
		var note *string
		if evt.Stage == progress.StageRunError {
			status = store.RunError
			if evt.Note == progress.NoteCanceled {
				status = store.RunCanceled
			}
			if evt.Note != "" {
				text := evt.Note
				note = &text
			}
		}
		if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type runDelta struct {
	counters store.RunCounters
	at       time.Time
}

func (d *runDelta) record(evt progress.Event) {
	d.counters.Processed++
	switch evt.Status {
	case crawler.StatusAdded:
		d.counters.Added++
	case crawler.StatusUpdated:
		d.counters.Updated++
	case crawler.StatusSkipped:
		d.counters.Skipped++
	case crawler.StatusFailed:
		d.counters.Failed++
	case crawler.StatusChecked:
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
}
