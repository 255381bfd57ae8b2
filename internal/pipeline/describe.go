package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// Description sources reported per item.
const (
	DescriptionFromSEO      = "seo"
	DescriptionFromFallback = "fallback"
)

// englishText accepts whitespace and every rune from '!' through the end of
// Latin Extended-B (U+024F), so '_' and Latin-1 symbols such as '©' pass.
var englishText = regexp.MustCompile(`^[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}!-\x{024F}]+$`)

// IsEnglish reports whether text uses only Latin script. Blank text counts
// as English.
func IsEnglish(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	return englishText.MatchString(text)
}

// NeedsDescription selects descriptions that are blank, the "hello"
// placeholder, or not in English.
func NeedsDescription(description string) bool {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return true
	}
	if strings.EqualFold(trimmed, "hello") {
		return true
	}
	return !IsEnglish(description)
}

// GenerateDescription prefers a usable SEO description and otherwise falls
// back to a generic sentence built from the title.
func GenerateDescription(title, seo string) (string, string) {
	if seo != "" && IsEnglish(seo) {
		return seo, DescriptionFromSEO
	}
	return fmt.Sprintf("%s is a powerful web application offering excellent functionality and user experience.", title),
		DescriptionFromFallback
}

// DescribeRequest configures a description backfill run.
type DescribeRequest struct {
	Concurrency int  `json:"concurrency"`
	DryRun      bool `json:"dryRun"`
}

// Describe rewrites weak descriptions using each site's meta description.
func (s *Service) Describe(ctx context.Context, req DescribeRequest) (RunSummary, error) {
	if req.Concurrency < 0 {
		return RunSummary{}, fmt.Errorf("%w: concurrency must not be negative", ErrInvalidRequest)
	}
	def := s.settings.Describe
	concurrency := orDefault(req.Concurrency, orDefault(def.Concurrency, batch.DefaultConcurrency))

	logger := s.logger.Named("describe")
	logger.Info("Fetching PWAs from the record store...")
	records, err := s.allRecords(ctx, "")
	if err != nil {
		return RunSummary{}, err
	}
	var pending []store.Record
	for _, rec := range records {
		if NeedsDescription(rec.Description) {
			pending = append(pending, rec)
		}
	}
	logger.Info(fmt.Sprintf("Found %d PWAs with empty/hello/non-English descriptions", len(pending)),
		zap.Int("records", len(records)),
		zap.Int("concurrency", concurrency),
		zap.Bool("dry_run", req.DryRun),
	)

	r, err := s.beginRun("describe", len(pending))
	if err != nil {
		return RunSummary{}, err
	}
	opts := batch.Options{
		Op:          "describe",
		Mode:        batch.ModeChunked,
		Concurrency: concurrency,
		Delay:       def.BatchDelay,
		ItemDelay:   def.ItemDelay,
		Limiter:     s.deps.Limiter,
		Progress:    r.reporter,
		Logger:      r.logger,
	}
	task := func(ctx context.Context, rec store.Record) crawler.Result[Item] {
		return s.describeOne(ctx, r, rec, req.DryRun)
	}
	report := batch.Run(ctx, opts, pending, func(rec store.Record) string { return rec.Link }, task)

	summary := newRunSummary(r, req.DryRun)
	summary.collect(report.Results, report.Summary, s.now())
	var runErr error
	if report.Summary.Canceled {
		runErr = interrupted(ctx, "describe")
	}
	s.endRun(ctx, r, report.Summary, summary, runErr)
	r.logger.Info("Describe complete",
		zap.Int("total", summary.Total),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, runErr
}

func (s *Service) describeOne(ctx context.Context, r *run, rec store.Record, dryRun bool) crawler.Result[Item] {
	item := Item{ID: rec.ID, Title: rec.Title, Link: rec.Link}
	seo := s.fetchSEODescription(ctx, r, rec.Link)
	description, source := GenerateDescription(rec.Title, seo)
	item.Source = source

	if dryRun {
		r.logger.Info(fmt.Sprintf("[DRY RUN] Would update: %s", rec.Title),
			zap.String("old", rec.Description),
			zap.String("seo", seo),
			zap.String("new", description),
		)
		return crawler.Skip(item, crawler.ReasonDryRun)
	}

	entry := rec.Entry
	entry.Description = description
	if err := s.deps.Store.UpdateRecord(ctx, s.settings.Database, rec.ID, entry); err != nil {
		r.logger.Warn(fmt.Sprintf("[ERROR] %s", rec.Title), zap.Error(err))
		return crawler.Fail(item, fmt.Errorf("update record: %w", err))
	}
	label := "from SEO"
	if source == DescriptionFromFallback {
		label = "fallback"
	}
	r.logger.Info(fmt.Sprintf("[UPDATED] %s (%s)", rec.Title, label))
	return crawler.Done(item, crawler.StatusUpdated)
}

// fetchSEODescription returns the page's meta or og description, or "" when
// the page cannot be fetched or has none.
func (s *Service) fetchSEODescription(ctx context.Context, r *run, link string) string {
	if s.deps.Fetcher == nil || link == "" {
		return ""
	}
	if timeout := s.settings.Describe.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := s.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: link})
	if err != nil {
		r.logger.Warn(fmt.Sprintf("[WARN] Failed to fetch %s", link), zap.Error(err))
		return ""
	}
	desc, ok := s.deps.Extractor.MetaDescription(string(resp.Body))
	if !ok {
		return ""
	}
	return desc
}

// allRecords walks every page of the store, sorted by sortField.
func (s *Service) allRecords(ctx context.Context, sortField string) ([]store.Record, error) {
	var (
		out    []store.Record
		cursor string
	)
	for {
		page, err := s.deps.Store.PaginatedQuery(ctx, s.settings.Database, sortField, cursor)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		out = append(out, page.Records...)
		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
