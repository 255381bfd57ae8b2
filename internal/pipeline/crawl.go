package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/classifier"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/dedup"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
	"github.com/JakeFAU/pwa-discovery/internal/storage/jsonfile"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// CrawlRequest drives the entry-file workflow. Empty fields take the
// configured defaults.
type CrawlRequest struct {
	// Source selects aggregated candidates when CandidatesPath is empty.
	Source string `json:"source"`
	// CandidatesPath names a newline-separated list of URLs or domains.
	CandidatesPath string `json:"candidatesPath"`
	DataPath       string `json:"dataPath"`
	// Limit caps the number of new candidates checked; zero means all.
	Limit       int  `json:"limit"`
	Concurrency int  `json:"concurrency"`
	DryRun      bool `json:"dryRun"`
}

// CrawlResult is the outcome for one candidate.
type CrawlResult struct {
	Domain string `json:"domain"`
	OK     bool   `json:"ok"`
	Title  string `json:"title,omitempty"`
	Error  string `json:"error,omitempty"`

	entry store.Entry
}

// CrawlSummary reports a crawl run.
type CrawlSummary struct {
	RunID        string        `json:"runId"`
	DataPath     string        `json:"dataPath"`
	Sources      int           `json:"sources"`
	Existing     int           `json:"existing"`
	Candidates   int           `json:"candidates"`
	Checked      int           `json:"checked"`
	OK           int           `json:"ok"`
	Failed       int           `json:"failed"`
	Written      int           `json:"written"`
	TotalEntries int           `json:"totalEntries"`
	DryRun       bool          `json:"dryRun"`
	Canceled     bool          `json:"canceled,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt,omitzero"`
	Results      []CrawlResult `json:"results"`
}

// Crawl checks candidates whose host is not yet in the entry file and
// appends the ones with a usable manifest. Unlike Discover it does not
// require the PWA verdict: a named manifest with an icon is enough, plus a
// service worker when crawl.require_service_worker is set.
func (s *Service) Crawl(ctx context.Context, req CrawlRequest) (CrawlSummary, error) {
	def := s.settings.Crawl
	if req.DataPath == "" {
		req.DataPath = def.DataPath
	}
	if req.CandidatesPath == "" {
		req.CandidatesPath = def.CandidatesPath
	}
	if req.Source == "" {
		req.Source = def.Source
	}
	if req.Limit < 0 || req.Concurrency < 0 {
		return CrawlSummary{}, fmt.Errorf("%w: limit and concurrency must not be negative", ErrInvalidRequest)
	}
	req.Concurrency = orDefault(req.Concurrency, orDefault(def.Concurrency, 5))

	existing, err := jsonfile.ReadEntries(req.DataPath)
	if err != nil {
		return CrawlSummary{}, fmt.Errorf("load entries: %w", err)
	}
	raw, err := s.crawlSources(ctx, req)
	if err != nil {
		return CrawlSummary{}, err
	}

	known := dedup.KnownHostsFromEntries(existing)
	seen := dedup.NewHostSet()
	var candidates []string
	for _, u := range raw {
		host := crawlHost(u)
		if known.Contains(host) || seen.Seen(host) {
			continue
		}
		candidates = append(candidates, u)
	}
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	r, err := s.beginRun("crawl", len(candidates))
	if err != nil {
		return CrawlSummary{}, err
	}
	r.logger.Info(fmt.Sprintf("Found %d new candidates (%d total sources, %d existing entries)",
		len(candidates), len(raw), len(existing)))

	summary := CrawlSummary{
		RunID:      r.id.String(),
		DataPath:   req.DataPath,
		Sources:    len(raw),
		Existing:   len(existing),
		Candidates: len(candidates),
		DryRun:     req.DryRun,
		StartedAt:  r.started,
	}

	items := make([]candidate, len(candidates))
	for i, u := range candidates {
		items[i] = candidate{index: i, domain: u}
	}
	opts := batch.Options{
		Op:          "crawl",
		Mode:        batch.ModePool,
		Concurrency: req.Concurrency,
		Limiter:     s.deps.Limiter,
		Progress:    r.reporter,
		Logger:      r.logger,
	}
	task := func(ctx context.Context, c candidate) crawler.Result[CrawlResult] {
		return s.crawlOne(ctx, r, c, len(items), req.DryRun)
	}
	report := batch.Run(ctx, opts, items, func(c candidate) string { return crawlHost(c.domain) }, task)

	var fresh []store.Entry
	summary.Results = make([]CrawlResult, 0, len(report.Results))
	for _, res := range report.Results {
		summary.Results = append(summary.Results, res.Value)
		if res.Value.OK {
			summary.OK++
			fresh = append(fresh, res.Value.entry)
		} else {
			summary.Failed++
		}
	}
	summary.Checked = len(report.Results)
	summary.Canceled = report.Summary.Canceled
	r.logger.Info(fmt.Sprintf("Checked: %d  |  OK: %d  |  Failed: %d", summary.Checked, summary.OK, summary.Failed))

	var runErr error
	if summary.Canceled {
		runErr = interrupted(ctx, "crawl")
	}

	merged := existing
	deduped := dedupeByHost(fresh)
	switch {
	case len(deduped) == 0:
		r.logger.Info("No new PWAs found.")
	case req.DryRun:
		r.logger.Info(fmt.Sprintf("Dry run: %d new entries not written", len(deduped)))
	default:
		next := append(slices.Clone(existing), deduped...)
		r.logger.Info(fmt.Sprintf("Writing %d new entries to %s", len(deduped), req.DataPath))
		if err := jsonfile.WriteEntries(req.DataPath, next); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("write entries: %w", err))
			break
		}
		merged = next
		summary.Written = len(deduped)
		s.archive(ctx, r, "-entries", merged)
	}
	summary.TotalEntries = len(merged)
	summary.FinishedAt = s.now()

	s.endRun(ctx, r, report.Summary, summary, runErr)
	r.logger.Info(fmt.Sprintf("Done. Total: %d entries in %s", summary.TotalEntries, req.DataPath))
	return summary, runErr
}

func (s *Service) crawlOne(ctx context.Context, r *run, c candidate, total int, dryRun bool) crawler.Result[CrawlResult] {
	label := fmt.Sprintf("[%d/%d]", c.index+1, total)
	host := crawlHost(c.domain)
	res := CrawlResult{Domain: host}

	if timeout := s.settings.Crawl.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := s.deps.Checker.Check(ctx, classifier.NormalizeTarget(c.domain))
	if err == nil {
		res.entry, err = entryFromCheck(resp, s.settings.Crawl.RequireServiceWorker)
	}
	if err != nil {
		res.Error = err.Error()
		r.logger.Info(fmt.Sprintf("%s %s ... FAIL  %s", label, host, res.Error),
			zap.String("host", host),
			zap.Error(err),
		)
		return crawler.Fail(res, err)
	}

	res.OK = true
	res.Title = res.entry.Title
	r.logger.Info(fmt.Sprintf("%s %s ... OK  \"%s\"", label, host, res.Title),
		zap.String("host", host),
		zap.Bool("dry_run", dryRun),
	)
	if dryRun {
		return crawler.Skip(res, crawler.ReasonDryRun)
	}
	return crawler.Done(res, crawler.StatusAdded)
}

// entryFromCheck builds a file entry from a check. The first failing
// requirement's detail becomes the error.
func entryFromCheck(resp pwa.CheckResponse, requireSW bool) (store.Entry, error) {
	checks := resp.Checks
	if !checks.Manifest.Pass || checks.Manifest.Data == nil {
		return store.Entry{}, errors.New(checks.Manifest.Detail)
	}
	manifest := checks.Manifest.Data
	title := manifest.DisplayName()
	if title == "" {
		return store.Entry{}, errors.New("Manifest has no name") //nolint:staticcheck // user-facing message
	}
	if !checks.Icons.Pass || checks.Icons.BestIcon == "" {
		if checks.Icons.Detail != "" {
			return store.Entry{}, errors.New(checks.Icons.Detail)
		}
		return store.Entry{}, errors.New("Manifest has no usable icon") //nolint:staticcheck // user-facing message
	}
	if requireSW && !checks.ServiceWorker.Pass {
		return store.Entry{}, errors.New(checks.ServiceWorker.Detail)
	}

	entry := store.Entry{
		Title: title,
		Link:  resp.URL,
		Icon:  checks.Icons.BestIcon,
	}
	if manifest.ShortName != "" && manifest.ShortName != title {
		entry.ShortName = manifest.ShortName
	}
	if manifest.Description != "" {
		entry.Description = manifest.Description
	}
	return entry, nil
}

func (s *Service) crawlSources(ctx context.Context, req CrawlRequest) ([]string, error) {
	if req.CandidatesPath != "" {
		return readCandidates(req.CandidatesPath)
	}
	if s.deps.Sources == nil {
		return nil, errors.New("no candidate file or source configured")
	}
	list, err := s.deps.Sources.Aggregate(ctx, req.Source, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate sources: %w", err)
	}
	return list, nil
}

// readCandidates loads one URL or domain per line. Blank lines and lines
// starting with # are ignored.
func readCandidates(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return out, nil
}

// crawlHost reduces a candidate URL or bare domain to its hostname.
func crawlHost(candidate string) string {
	return dedup.HostOf(classifier.NormalizeTarget(candidate))
}

func dedupeByHost(entries []store.Entry) []store.Entry {
	seen := dedup.NewHostSet()
	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if seen.Seen(dedup.HostOf(e.Link)) {
			continue
		}
		out = append(out, e)
	}
	return out
}
