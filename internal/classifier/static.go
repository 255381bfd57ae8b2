package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

// Static classifies a site from its raw HTML and manifest without running
// any JavaScript.
type Static struct {
	fetcher   crawler.Fetcher
	extractor extract.Extractor
	verdict   Verdict
	logger    *zap.Logger
}

// NewStatic builds the static strategy. A nil extractor uses the regex
// extractor and a nil verdict requires HTTPS, manifest and service worker.
func NewStatic(fetcher crawler.Fetcher, extractor extract.Extractor, verdict Verdict, logger *zap.Logger) *Static {
	if extractor == nil {
		extractor = extract.NewRegex()
	}
	if verdict == nil {
		verdict = defaultVerdict{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{
		fetcher:   fetcher,
		extractor: extractor,
		verdict:   verdict,
		logger:    logger,
	}
}

// Name implements Strategy.
func (s *Static) Name() string {
	return NameStatic
}

// Check implements Strategy. Only context cancellation is returned as an
// error; fetch and parse failures are reported in the checks.
func (s *Static) Check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	start := time.Now()
	resp, _, err := s.inspect(ctx, target)
	observe(NameStatic, resp, err, start)
	return resp, err
}

// inspect runs the check and also returns the fetched page so Auto can decide
// on escalation.
func (s *Static) inspect(ctx context.Context, target string) (pwa.CheckResponse, crawler.FetchResponse, error) {
	pageURL := NormalizeTarget(target)
	resp := newResponse(pageURL, NameStatic)

	page, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: pageURL})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp, page, fmt.Errorf("check %s: %w", pageURL, ctxErr)
		}
		s.logger.Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		markPageFailure(&resp, err)
		return resp, page, nil
	}

	html := string(page.Body)
	href, _ := s.extractor.ManifestLink(html)
	var manifest *pwa.Manifest
	resp.Checks.Manifest, manifest = manifestCheck(ctx, s.fetcher, href, pageURL)

	sw := s.extractor.ServiceWorker(html)
	resp.Checks.ServiceWorker = pwa.CheckResult{Pass: sw.Found, Detail: sw.Detail}

	metaDescription, _ := s.extractor.MetaDescription(html)
	finish(&resp, manifest, metaDescription, s.verdict)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return resp, page, fmt.Errorf("check %s: %w", pageURL, ctxErr)
	}
	return resp, page, nil
}
