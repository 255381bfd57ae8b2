// Package classifier decides whether a site is a Progressive Web App.
//
// Static inspects the raw HTML and manifest and is the default. Rendered asks a
// headless browser whether a service worker actually registers. Auto runs
// Static and escalates to Rendered only for client-rendered shells.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/metrics"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

// Strategy names.
const (
	NameStatic   = "static-heuristic"
	NameRendered = "rendered"
	NameAuto     = "auto"
)

// ErrUnknownStrategy is returned by Select for unrecognized names.
var ErrUnknownStrategy = errors.New("unknown classifier strategy")

// Strategy checks a single URL.
type Strategy interface {
	Name() string
	Check(ctx context.Context, target string) (pwa.CheckResponse, error)
}

// Verdict turns the individual checks into the final decision.
type Verdict interface {
	Qualifies(checks pwa.Checks) bool
}

// defaultVerdict requires HTTPS, a valid manifest and a service worker.
type defaultVerdict struct{}

func (defaultVerdict) Qualifies(c pwa.Checks) bool {
	return c.HTTPS.Pass && c.Manifest.Pass && c.ServiceWorker.Pass
}

// NormalizeTarget prefixes https:// unless the target already names a scheme
// starting with http.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "http") {
		return target
	}
	return "https://" + target
}

// Select resolves a configured strategy name. "static" is accepted as an
// alias for the static heuristic.
func Select(name string, static *Static, rendered *Rendered, detector crawler.HeadlessDetector) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "static", NameStatic:
		return static, nil
	case NameRendered:
		if rendered == nil {
			return nil, fmt.Errorf("%w: %q requires headless.enabled", ErrUnknownStrategy, name)
		}
		return rendered, nil
	case NameAuto:
		if rendered == nil {
			return nil, fmt.Errorf("%w: %q requires headless.enabled", ErrUnknownStrategy, name)
		}
		return NewAuto(static, rendered, detector, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func observe(strategy string, resp pwa.CheckResponse, err error, start time.Time) {
	verdict := metrics.VerdictNotPWA
	switch {
	case err != nil:
		verdict = metrics.VerdictError
	case resp.IsPwa:
		verdict = metrics.VerdictPWA
	}
	metrics.ObserveCheck(strategy, verdict, time.Since(start))
}
