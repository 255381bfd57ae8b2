package extract

import (
	"regexp"
	"strings"
)

var manifestLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<link[^>]*rel\s*=\s*["']manifest["'][^>]*href\s*=\s*["']([^"']+)["'][^>]*/?>`),
	regexp.MustCompile(`(?i)<link[^>]*href\s*=\s*["']([^"']+)["'][^>]*rel\s*=\s*["']manifest["'][^>]*/?>`),
}

var metaDescriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]*name\s*=\s*["']description["'][^>]*content\s*=\s*["']([^"']+)["'][^>]*/?>`),
	regexp.MustCompile(`(?i)<meta[^>]*content\s*=\s*["']([^"']+)["'][^>]*name\s*=\s*["']description["'][^>]*/?>`),
	regexp.MustCompile(`(?i)<meta[^>]*property\s*=\s*["']og:description["'][^>]*content\s*=\s*["']([^"']+)["'][^>]*/?>`),
	regexp.MustCompile(`(?i)<meta[^>]*content\s*=\s*["']([^"']+)["'][^>]*property\s*=\s*["']og:description["'][^>]*/?>`),
}

// Regex scans raw HTML with fixed patterns. It is the default extractor.
type Regex struct {
	scanner *signatureScanner
}

// NewRegex builds a Regex extractor.
func NewRegex() *Regex {
	return &Regex{scanner: newSignatureScanner()}
}

// ManifestLink returns the href of the first manifest link, verbatim.
func (r *Regex) ManifestLink(html string) (string, bool) {
	return firstSubmatch(manifestLinkPatterns, html)
}

// MetaDescription returns the trimmed page description.
func (r *Regex) MetaDescription(html string) (string, bool) {
	desc, ok := firstSubmatch(metaDescriptionPatterns, html)
	if !ok {
		return "", false
	}
	desc = strings.TrimSpace(desc)
	return desc, desc != ""
}

// ServiceWorker counts service-worker signatures across the whole source.
func (r *Regex) ServiceWorker(html string) SWDetection {
	return r.scanner.detect(html)
}

func firstSubmatch(patterns []*regexp.Regexp, html string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}
