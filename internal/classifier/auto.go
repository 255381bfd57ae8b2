package classifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/headless/detector"
	"github.com/JakeFAU/pwa-discovery/internal/metrics"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

// Auto runs the static check and re-checks in a browser when the page has a
// manifest but no service-worker signature and looks client-rendered.
type Auto struct {
	static   *Static
	rendered Strategy
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// NewAuto builds the escalating strategy. A nil detector uses the default
// heuristic.
func NewAuto(static *Static, rendered Strategy, det crawler.HeadlessDetector, logger *zap.Logger) *Auto {
	if det == nil {
		det = detector.NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auto{static: static, rendered: rendered, detector: det, logger: logger}
}

// Name implements Strategy.
func (a *Auto) Name() string {
	return NameAuto
}

// Check implements Strategy. A failed escalation keeps the static verdict.
func (a *Auto) Check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	start := time.Now()
	resp, page, err := a.static.inspect(ctx, target)
	if err != nil {
		observe(NameAuto, resp, err, start)
		return resp, err
	}
	if !resp.Checks.Manifest.Pass || resp.Checks.ServiceWorker.Pass || !a.detector.ShouldPromote(page) {
		observe(NameAuto, resp, nil, start)
		return resp, nil
	}

	metrics.ObserveHeadlessPromotion()
	rendered, err := a.rendered.Check(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			observe(NameAuto, resp, err, start)
			return resp, err
		}
		a.logger.Warn("headless escalation failed; keeping static verdict",
			zap.String("url", resp.URL),
			zap.Error(err),
		)
		observe(NameAuto, resp, nil, start)
		return resp, nil
	}
	observe(NameAuto, rendered, nil, start)
	return rendered, nil
}
