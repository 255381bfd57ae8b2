package pipeline

import (
	"time"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// Item is the per-record outcome of import, describe and dedupe runs.
type Item struct {
	ID     string             `json:"id,omitempty"`
	Title  string             `json:"title"`
	Link   string             `json:"link,omitempty"`
	Status crawler.Status     `json:"status"`
	Reason crawler.SkipReason `json:"reason,omitempty"`
	Error  string             `json:"error,omitempty"`
	// Source tells where a new description came from (seo or fallback).
	Source string `json:"source,omitempty"`
}

// RunSummary reports an import, describe or dedupe run.
type RunSummary struct {
	RunID      string    `json:"runId"`
	Op         string    `json:"op"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	crawler.Summary
	Items []Item `json:"items"`
}

func newRunSummary(r *run, dryRun bool) RunSummary {
	return RunSummary{
		RunID:     r.id.String(),
		Op:        r.op,
		DryRun:    dryRun,
		StartedAt: r.started,
		Items:     []Item{},
	}
}

// collect copies the batch report into the summary.
func (rs *RunSummary) collect(report []crawler.Result[Item], sum crawler.Summary, finished time.Time) {
	rs.Summary = sum
	rs.FinishedAt = finished
	rs.Items = make([]Item, 0, len(report))
	for _, res := range report {
		item := res.Value
		item.Status = res.Status
		item.Reason = res.Reason
		item.Error = res.Err
		rs.Items = append(rs.Items, item)
	}
}
