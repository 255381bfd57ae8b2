package classifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	"github.com/JakeFAU/pwa-discovery/internal/fetcher/headless"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

// Rendered loads the page in a headless browser and trusts the browser's view
// of the service worker and manifest link. The manifest body is still fetched
// over plain HTTP.
type Rendered struct {
	prober    headless.Prober
	fetcher   crawler.Fetcher
	extractor extract.Extractor
	verdict   Verdict
	logger    *zap.Logger
}

// NewRendered builds the rendered strategy.
func NewRendered(
	prober headless.Prober,
	fetcher crawler.Fetcher,
	extractor extract.Extractor,
	verdict Verdict,
	logger *zap.Logger,
) *Rendered {
	if extractor == nil {
		extractor = extract.NewRegex()
	}
	if verdict == nil {
		verdict = defaultVerdict{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rendered{
		prober:    prober,
		fetcher:   fetcher,
		extractor: extractor,
		verdict:   verdict,
		logger:    logger,
	}
}

// Name implements Strategy.
func (r *Rendered) Name() string {
	return NameRendered
}

// Check implements Strategy. Browser launch and navigation failures are
// returned as errors.
func (r *Rendered) Check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	start := time.Now()
	resp, err := r.check(ctx, target)
	observe(NameRendered, resp, err, start)
	return resp, err
}

func (r *Rendered) check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	pageURL := NormalizeTarget(target)
	resp := newResponse(pageURL, NameRendered)

	probe, err := r.prober.Probe(ctx, pageURL, nil)
	if err != nil {
		return resp, fmt.Errorf("render %s: %w", pageURL, err)
	}
	if probe.StatusCode < http.StatusOK || probe.StatusCode >= http.StatusMultipleChoices {
		markPageFailure(&resp, &crawler.StatusError{Code: probe.StatusCode, Text: http.StatusText(probe.StatusCode)})
		return resp, nil
	}

	href := probe.ManifestHref
	if href == "" {
		href, _ = r.extractor.ManifestLink(probe.HTML)
	}
	var manifest *pwa.Manifest
	resp.Checks.Manifest, manifest = manifestCheck(ctx, r.fetcher, href, pageURL)
	resp.Checks.ServiceWorker = serviceWorkerResult(probe)

	metaDescription, _ := r.extractor.MetaDescription(probe.HTML)
	finish(&resp, manifest, metaDescription, r.verdict)

	r.logger.Debug("rendered check",
		zap.String("url", pageURL),
		zap.Bool("sw_registered", probe.SWRegistered),
		zap.Duration("duration", probe.Duration),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return resp, fmt.Errorf("render %s: %w", pageURL, ctxErr)
	}
	return resp, nil
}

func serviceWorkerResult(probe headless.ProbeResult) pwa.CheckResult {
	switch {
	case probe.SWRegistered && probe.SWActive:
		return pwa.CheckResult{Pass: true, Detail: "Service Worker registered and active (scope " + probe.SWScope + ")"}
	case probe.SWRegistered:
		return pwa.CheckResult{Pass: true, Detail: "Service Worker registered but not yet active (scope " + probe.SWScope + ")"}
	case !probe.SWSupported:
		return pwa.CheckResult{Detail: "Browser context does not expose navigator.serviceWorker"}
	default:
		return pwa.CheckResult{Detail: "No Service Worker registered after page load"}
	}
}
