package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// DedupeRequest configures a title dedupe run.
type DedupeRequest struct {
	DryRun bool `json:"dryRun"`
}

// Dedupe archives every record whose title repeats an earlier one. Records
// are visited in title order, so the first-listed record of each title is
// kept. Titles compare case-insensitively after trimming.
func (s *Service) Dedupe(ctx context.Context, req DedupeRequest) (RunSummary, error) {
	logger := s.logger.Named("dedupe")
	records, err := s.allRecords(ctx, store.FieldTitle)
	if err != nil {
		return RunSummary{}, err
	}
	repeats := repeatedTitles(records)
	logger.Info(fmt.Sprintf("Found %d duplicate titles among %d records", len(repeats), len(records)))

	r, err := s.beginRun("dedupe", len(repeats))
	if err != nil {
		return RunSummary{}, err
	}
	mode := s.settings.Mode
	if mode == "" {
		mode = batch.ModeChunked
	}
	opts := batch.Options{
		Op:          "dedupe",
		Mode:        mode,
		Concurrency: s.settings.Concurrency,
		Progress:    r.reporter,
		Logger:      r.logger,
	}
	task := func(ctx context.Context, rec store.Record) crawler.Result[Item] {
		item := Item{ID: rec.ID, Title: rec.Title, Link: rec.Link}
		if req.DryRun {
			r.logger.Info(fmt.Sprintf("[DRY RUN] Would archive: %s (%s)", rec.Title, rec.ID))
			return crawler.Skip(item, crawler.ReasonDryRun)
		}
		if err := s.deps.Store.ArchiveRecord(ctx, s.settings.Database, rec.ID); err != nil {
			return crawler.Fail(item, fmt.Errorf("archive record: %w", err))
		}
		r.logger.Info(fmt.Sprintf("[ARCHIVED] %s (%s)", rec.Title, rec.ID))
		return crawler.Done(item, crawler.StatusUpdated)
	}
	report := batch.Run(ctx, opts, repeats, func(rec store.Record) string { return rec.ID }, task)

	summary := newRunSummary(r, req.DryRun)
	summary.collect(report.Results, report.Summary, s.now())
	var runErr error
	if report.Summary.Canceled {
		runErr = interrupted(ctx, "dedupe")
	}
	s.endRun(ctx, r, report.Summary, summary, runErr)
	r.logger.Info("Dedupe complete",
		zap.Int("total", summary.Total),
		zap.Int("archived", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, runErr
}

// repeatedTitles returns the records whose normalized title was already seen
// earlier in records.
func repeatedTitles(records []store.Record) []store.Record {
	seen := make(map[string]struct{}, len(records))
	var out []store.Record
	for _, rec := range records {
		key := strings.ToLower(strings.TrimSpace(rec.Title))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			out = append(out, rec)
			continue
		}
		seen[key] = struct{}{}
	}
	return out
}
