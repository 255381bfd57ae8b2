package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

// RunCounters holds per-run outcome totals.
type RunCounters struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Added     int64 `json:"added"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Add accumulates delta into c.
func (c *RunCounters) Add(delta RunCounters) {
	c.Total += delta.Total
	c.Processed += delta.Processed
	c.Added += delta.Added
	c.Updated += delta.Updated
	c.Skipped += delta.Skipped
	c.Failed += delta.Failed
}

// Run models one batch operation (discover, crawl, import, ...).
type Run struct {
	ID           uuid.UUID   `json:"id"`
	Op           string      `json:"op"`
	StartedAt    time.Time   `json:"startedAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	FinishedAt   *time.Time  `json:"finishedAt,omitempty"`
	Status       RunStatus   `json:"status"`
	Counters     RunCounters `json:"counters"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently refreshes) a running run.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, op string, total int64, startedAt time.Time) error
	// AddRunCounters applies outcome deltas to a run.
	AddRunCounters(ctx context.Context, runID uuid.UUID, delta RunCounters, at time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
