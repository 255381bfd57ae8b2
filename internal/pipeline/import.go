package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/storage/jsonfile"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// ImportRequest names the entry file to load into the record store.
type ImportRequest struct {
	Path        string `json:"path"`
	Concurrency int    `json:"concurrency"`
	DryRun      bool   `json:"dryRun"`
}

// Import copies entries from a JSON entry file into the record store,
// skipping incomplete entries and links that are already listed.
func (s *Service) Import(ctx context.Context, req ImportRequest) (RunSummary, error) {
	if req.Path == "" {
		return RunSummary{}, fmt.Errorf("%w: import file is required", ErrInvalidRequest)
	}
	if req.Concurrency < 0 {
		return RunSummary{}, fmt.Errorf("%w: concurrency must not be negative", ErrInvalidRequest)
	}
	if _, err := os.Stat(req.Path); err != nil {
		return RunSummary{}, fmt.Errorf("open import file: %w", err)
	}
	entries, err := jsonfile.ReadEntries(req.Path)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load import file: %w", err)
	}
	def := s.settings.Import
	concurrency := orDefault(req.Concurrency, orDefault(def.Concurrency, batch.DefaultConcurrency))

	r, err := s.beginRun("import", len(entries))
	if err != nil {
		return RunSummary{}, err
	}
	mode := "LIVE"
	if req.DryRun {
		mode = "DRY RUN"
	}
	r.logger.Info(fmt.Sprintf("Found %d PWAs in %s", len(entries), req.Path),
		zap.String("mode", mode),
		zap.Int("concurrency", concurrency),
	)

	opts := batch.Options{
		Op:          "import",
		Mode:        batch.ModeChunked,
		Concurrency: concurrency,
		Delay:       def.Delay,
		Progress:    r.reporter,
		Logger:      r.logger,
	}
	task := func(ctx context.Context, e store.Entry) crawler.Result[Item] {
		return s.importOne(ctx, r, e, req.DryRun)
	}
	report := batch.Run(ctx, opts, entries, func(e store.Entry) string { return e.Link }, task)

	summary := newRunSummary(r, req.DryRun)
	summary.collect(report.Results, report.Summary, s.now())
	var runErr error
	if report.Summary.Canceled {
		runErr = interrupted(ctx, "import")
	}
	s.endRun(ctx, r, report.Summary, summary, runErr)
	r.logger.Info("Import complete",
		zap.Int("total", summary.Total),
		zap.Int("added", summary.Added),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, runErr
}

func (s *Service) importOne(ctx context.Context, r *run, e store.Entry, dryRun bool) crawler.Result[Item] {
	item := Item{Title: e.Title, Link: e.Link}
	if !e.Complete() {
		name := e.Title
		if name == "" {
			name = e.Link
		}
		if name == "" {
			name = "unknown"
		}
		r.logger.Info(fmt.Sprintf("[SKIP] Missing required fields: %s", name))
		return crawler.Skip(item, crawler.ReasonMissingFields)
	}

	exists, err := s.gate.Exists(ctx, e.Link)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("[ERROR] %s", e.Title), zap.Error(err))
		return crawler.Fail(item, err)
	}
	if exists {
		r.logger.Info(fmt.Sprintf("[SKIP] Duplicate: %s (%s)", e.Title, e.Link))
		return crawler.Skip(item, crawler.ReasonDuplicate)
	}
	if dryRun {
		r.logger.Info(fmt.Sprintf("[DRY RUN] Would add: %s (%s)", e.Title, e.Link))
		return crawler.Skip(item, crawler.ReasonDryRun)
	}

	entry := store.Entry{
		Title:       e.Title,
		Link:        e.Link,
		Icon:        e.Icon,
		Description: e.Description,
		Tags:        append([]string(nil), s.settings.Import.Tags...),
	}
	res, err := s.deps.Store.InsertRecord(ctx, s.settings.Database, entry)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("[ERROR] %s", e.Title), zap.Error(err))
		return crawler.Fail(item, fmt.Errorf("insert record: %w", err))
	}
	item.ID = res.ID
	r.logger.Info(fmt.Sprintf("[ADDED] %s (%s)", e.Title, e.Link))
	s.notifyAdded(ctx, r.op, r.id.String(), res.ID, entry)
	return crawler.Done(item, crawler.StatusAdded)
}
