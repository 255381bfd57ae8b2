// Package extract pulls PWA signals out of raw HTML: the manifest link, a
// meta description, and service-worker registration signatures. It also
// resolves manifest-relative URLs and picks the best icon.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

// Extractor reads PWA signals from an HTML document.
type Extractor interface {
	ManifestLink(html string) (string, bool)
	MetaDescription(html string) (string, bool)
	ServiceWorker(html string) SWDetection
}

// SWDetection summarizes the service-worker signature scan.
type SWDetection struct {
	Found   bool
	Matched int
	Detail  string
}

// New returns the extractor registered under name. Unknown names fall back to
// the regex extractor.
func New(name string) Extractor {
	if strings.EqualFold(name, "dom") {
		return NewDOM()
	}
	return NewRegex()
}

var absoluteHTTP = regexp.MustCompile(`^https?://`)

// ResolveURL resolves ref against base. Absolute http(s) refs pass through and
// any parse failure returns ref unchanged.
func ResolveURL(ref, base string) string {
	if absoluteHTTP.MatchString(ref) {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// preferredIconSizes is ordered from most to least preferred.
var preferredIconSizes = []string{
	"512x512", "384x384", "256x256", "192x192",
	"144x144", "128x128", "96x96", "72x72",
}

// FindBestIcon picks the largest preferred icon and resolves it against base.
func FindBestIcon(icons []pwa.ManifestIcon, base string) (string, bool) {
	if len(icons) == 0 {
		return "", false
	}
	for _, size := range preferredIconSizes {
		for _, icon := range icons {
			if !strings.Contains(icon.Sizes, size) {
				continue
			}
			if icon.Src != "" {
				return ResolveURL(icon.Src, base), true
			}
			break
		}
	}
	for _, icon := range icons {
		if icon.Src != "" {
			return ResolveURL(icon.Src, base), true
		}
	}
	return "", false
}
