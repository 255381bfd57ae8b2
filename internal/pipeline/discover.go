package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/dedup"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	"github.com/JakeFAU/pwa-discovery/internal/sources"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// DiscoverRequest selects candidates and run options. Zero values take the
// configured defaults.
type DiscoverRequest struct {
	Source      string `json:"source"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	Concurrency int    `json:"concurrency"`
	DryRun      bool   `json:"dryRun"`
}

// DiscoverResult is the outcome for one candidate domain.
type DiscoverResult struct {
	Domain  string             `json:"domain"`
	IsPwa   bool               `json:"isPwa"`
	Added   bool               `json:"added"`
	Skipped bool               `json:"skipped"`
	Reason  crawler.SkipReason `json:"reason,omitempty"`
	Error   string             `json:"error,omitempty"`
	Title   string             `json:"title,omitempty"`
}

// DiscoverSummary is returned to callers and appended to the history file.
type DiscoverSummary struct {
	RunID        string           `json:"runId"`
	Source       string           `json:"source"`
	TotalDomains int              `json:"totalDomains"`
	Checked      int              `json:"checked"`
	Found        int              `json:"found"`
	Added        int              `json:"added"`
	Skipped      int              `json:"skipped"`
	Failed       int              `json:"failed"`
	DryRun       bool             `json:"dryRun"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt,omitzero"`
	Partial      bool             `json:"partial,omitempty"`
	Canceled     bool             `json:"canceled,omitempty"`
	Results      []DiscoverResult `json:"results"`
}

// FoundPWA is the compact form of a PWA-positive result.
type FoundPWA struct {
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Added   bool   `json:"added"`
	Skipped bool   `json:"skipped"`
}

// FoundPWAs lists the PWA-positive results in candidate order.
func (d DiscoverSummary) FoundPWAs() []FoundPWA {
	out := make([]FoundPWA, 0, d.Found)
	for _, r := range d.Results {
		if r.IsPwa {
			out = append(out, FoundPWA{Domain: r.Domain, Title: r.Title, Added: r.Added, Skipped: r.Skipped})
		}
	}
	return out
}

func (d *DiscoverSummary) tally(results []DiscoverResult) {
	d.Results = results
	d.Checked = len(results)
	d.Found, d.Added, d.Skipped, d.Failed = 0, 0, 0, 0
	for _, r := range results {
		if r.IsPwa {
			d.Found++
		}
		if r.Added {
			d.Added++
		}
		if r.Skipped {
			d.Skipped++
		}
		if r.Error != "" {
			d.Failed++
		}
	}
}

type candidate struct {
	index  int
	domain string
}

// collector keeps finished results by candidate index so checkpoints can be
// taken while the batch is still running.
type collector struct {
	mu      sync.Mutex
	results []DiscoverResult
	done    []bool
}

func newCollector(n int) *collector {
	return &collector{results: make([]DiscoverResult, n), done: make([]bool, n)}
}

func (c *collector) set(idx int, r DiscoverResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[idx] = r
	c.done[idx] = true
}

func (c *collector) snapshot() []DiscoverResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DiscoverResult, 0, len(c.results))
	for i, ok := range c.done {
		if ok {
			out = append(out, c.results[i])
		}
	}
	return out
}

func (s *Service) discoverDefaults(req DiscoverRequest) (DiscoverRequest, error) {
	def := s.settings.Discover
	if req.Limit < 0 || req.Offset < 0 || req.Concurrency < 0 {
		return req, fmt.Errorf("%w: limit, offset and concurrency must not be negative", ErrInvalidRequest)
	}
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	if req.Source == "" {
		req.Source = def.Source
	}
	if req.Source == "" {
		req.Source = sources.SourceTranco
	}
	if !sources.ValidSource(req.Source) {
		return req, fmt.Errorf("%w: %q (want tranco, github, or all)", sources.ErrInvalidSource, req.Source)
	}
	req.Limit = orDefault(req.Limit, orDefault(def.Limit, 500))
	if req.Offset == 0 {
		req.Offset = def.Offset
	}
	req.Concurrency = orDefault(req.Concurrency, orDefault(def.Concurrency, batch.DefaultConcurrency))
	return req, nil
}

// Discover aggregates candidates from the selected source, checks each one
// and adds qualifying PWAs that are not yet listed. Per-domain failures are
// recorded in the summary; only invalid input, a total source failure, or
// cancellation produce an error. On cancellation the partial summary is
// returned alongside the error.
func (s *Service) Discover(ctx context.Context, req DiscoverRequest) (DiscoverSummary, error) {
	req, err := s.discoverDefaults(req)
	if err != nil {
		return DiscoverSummary{}, err
	}
	if s.deps.Sources == nil {
		return DiscoverSummary{}, fmt.Errorf("discover: %w", sources.ErrNoDomains)
	}

	all, err := s.deps.Sources.Aggregate(ctx, req.Source, req.Limit+req.Offset)
	if err != nil {
		return DiscoverSummary{}, fmt.Errorf("aggregate sources: %w", err)
	}
	domains := window(all, req.Offset, req.Limit)

	r, err := s.beginRun("discover", len(domains))
	if err != nil {
		return DiscoverSummary{}, err
	}
	r.logger.Info(fmt.Sprintf("Starting PWA check for %d domains...", len(domains)),
		zap.String("source", req.Source),
		zap.Int("offset", req.Offset),
		zap.Int("concurrency", req.Concurrency),
		zap.Bool("dry_run", req.DryRun),
	)

	summary := DiscoverSummary{
		RunID:        r.id.String(),
		Source:       req.Source,
		TotalDomains: len(all),
		DryRun:       req.DryRun,
		StartedAt:    r.started,
	}
	history := NewHistory(s.settings.Discover.HistoryPath)
	seen := s.loadSeenFilter(r)

	items := make([]candidate, len(domains))
	for i, d := range domains {
		items[i] = candidate{index: i, domain: d}
	}
	results := newCollector(len(items))
	every := s.settings.Discover.CheckpointEvery
	chunks := 0

	opts := batch.Options{
		Op:          "discover",
		Mode:        batch.ModeChunked,
		Concurrency: req.Concurrency,
		Delay:       s.settings.Discover.Delay,
		Progress:    r.reporter,
		Logger:      r.logger,
		OnChunk: func(done, total int) {
			chunks++
			if every <= 0 || chunks%every != 0 || done >= total {
				return
			}
			partial := summary
			partial.Partial = true
			partial.tally(results.snapshot())
			s.saveHistory(r, history, partial)
			r.reporter.Emit(progress.Event{Stage: progress.StageRunCheckpoint, Done: done, Total: total})
		},
	}
	task := func(ctx context.Context, c candidate) crawler.Result[DiscoverResult] {
		res := s.discoverOne(ctx, r, c.domain, req.DryRun, seen)
		results.set(c.index, res.Value)
		return res
	}
	report := batch.Run(ctx, opts, items, func(c candidate) string { return c.domain }, task)

	summary.tally(results.snapshot())
	summary.FinishedAt = s.now()
	summary.Canceled = report.Summary.Canceled

	var runErr error
	if report.Summary.Canceled {
		runErr = interrupted(ctx, "discover")
	}
	s.saveHistory(r, history, summary)
	if seen != nil && !req.DryRun {
		if err := seen.Save(); err != nil {
			r.logger.Warn("save seen filter", zap.Error(err))
		}
	}
	s.endRun(ctx, r, report.Summary, summary, runErr)

	r.logger.Info(fmt.Sprintf("Discovery complete: %d checked, %d found, %d added, %d skipped, %d failed",
		summary.Checked, summary.Found, summary.Added, summary.Skipped, summary.Failed))
	return summary, runErr
}

func (s *Service) discoverOne(
	ctx context.Context,
	r *run,
	domain string,
	dryRun bool,
	seen *dedup.SeenFilter,
) crawler.Result[DiscoverResult] {
	res := DiscoverResult{Domain: domain}
	host, ok := sources.NormalizeHost(domain)
	if !ok {
		host = domain
	}
	if seen != nil && seen.Test(host) {
		res.Skipped = true
		res.Reason = crawler.ReasonKnownHost
		return crawler.Skip(res, res.Reason)
	}

	check, err := s.deps.Checker.Check(ctx, domain)
	if err != nil {
		res.Error = err.Error()
		return crawler.Fail(res, err)
	}
	// Only settled outcomes of a live run are remembered; dry runs and
	// failed inserts stay eligible for the next run.
	settle := func() {
		if seen != nil && !dryRun {
			seen.Add(host)
		}
	}
	res.IsPwa = check.IsPwa
	if !check.IsPwa {
		settle()
		return crawler.Done(res, crawler.StatusChecked)
	}

	res.Title = check.Suggestion.Title
	r.logger.Info(fmt.Sprintf("Found PWA: %s (%s)", res.Title, domain))
	skip := func(reason crawler.SkipReason) crawler.Result[DiscoverResult] {
		res.Skipped = true
		res.Reason = reason
		return crawler.Skip(res, reason)
	}
	if dryRun {
		return skip(crawler.ReasonDryRun)
	}

	entry := store.Entry{
		Title:       check.Suggestion.Title,
		Link:        check.Suggestion.Link,
		Icon:        check.Suggestion.Icon,
		Description: check.Suggestion.Description,
		Tags:        append([]string(nil), s.settings.Discover.Tags...),
	}
	exists, err := s.gate.Exists(ctx, entry.Link)
	if err != nil {
		res.Error = err.Error()
		return crawler.Fail(res, err)
	}
	if exists {
		settle()
		return skip(crawler.ReasonDuplicate)
	}
	if entry.Title == "" || entry.Icon == "" {
		settle()
		return skip(crawler.ReasonNoTitleOrIcon)
	}

	inserted, err := s.deps.Store.InsertRecord(ctx, s.settings.Database, entry)
	if err != nil {
		res.Error = fmt.Sprintf("insert record: %v", err)
		return crawler.Fail(res, fmt.Errorf("insert record: %w", err))
	}
	res.Added = true
	settle()
	s.notifyAdded(ctx, r.op, r.id.String(), inserted.ID, entry)
	return crawler.Done(res, crawler.StatusAdded)
}

func (s *Service) loadSeenFilter(r *run) *dedup.SeenFilter {
	p := s.settings.Discover.SeenFilterPath
	if p == "" {
		return nil
	}
	seen, err := dedup.LoadSeenFilter(p, 0, 0)
	if err != nil {
		r.logger.Warn("seen filter unavailable, checking every candidate", zap.String("path", p), zap.Error(err))
		return nil
	}
	return seen
}

func (s *Service) saveHistory(r *run, h *History, summary DiscoverSummary) {
	if h == nil {
		return
	}
	if err := h.Save(summary); err != nil {
		r.logger.Warn("save discover history", zap.String("path", h.Path()), zap.Error(err))
	}
}

// window returns list[offset:offset+limit], clamped to the list bounds.
func window(list []string, offset, limit int) []string {
	if offset >= len(list) {
		return nil
	}
	end := min(offset+limit, len(list))
	return list[offset:end]
}
