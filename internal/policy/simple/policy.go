// Package simple holds the verdict gate that turns individual PWA checks into
// a single installability decision.
package simple

import "github.com/JakeFAU/pwa-discovery/internal/pwa"

// Config tightens the gate beyond HTTPS, manifest and service worker.
type Config struct {
	RequireIcons   bool
	RequireDisplay bool
}

// Policy decides whether a set of checks qualifies as a PWA.
type Policy struct {
	cfg Config
}

// New creates a new Policy.
func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Qualifies reports the verdict. HTTPS, manifest and service worker are always
// required.
func (p *Policy) Qualifies(checks pwa.Checks) bool {
	if !checks.HTTPS.Pass || !checks.Manifest.Pass || !checks.ServiceWorker.Pass {
		return false
	}
	if p == nil {
		return true
	}
	if p.cfg.RequireIcons && !checks.Icons.Pass {
		return false
	}
	if p.cfg.RequireDisplay && !checks.Display.Pass {
		return false
	}
	return true
}
