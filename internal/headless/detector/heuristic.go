// Package detector decides when a statically fetched page is a client-rendered
// shell whose PWA signals only appear after JavaScript runs.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// BodyLengthThreshold is the size below which a script-heavy page counts
	// as a shell.
	BodyLengthThreshold int
	// ScriptSharePercent is the share of the body inside <script> tags that
	// marks a page as script-heavy.
	ScriptSharePercent int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold, ScriptSharePercent: 25}
}

// shellMarkers are mount points and hydration hints left by common SPA
// frameworks in otherwise empty pages.
var shellMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("id=\"__nuxt\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("<app-root"),
	[]byte("id=\"svelte\""),
	[]byte("enable javascript to run this app"),
}

// ShouldPromote reports whether the page should be re-checked in a browser.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && h.scriptHeavy(body) {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range shellMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (h *Heuristic) scriptHeavy(body []byte) bool {
	share := h.ScriptSharePercent
	if share <= 0 {
		share = 25
	}
	total := len(body)
	if total == 0 {
		return false
	}
	return scriptCoverage(strings.ToLower(string(body)))*100/total >= share
}

// scriptCoverage returns the number of bytes covered by script elements,
// tags included. An unterminated script runs to the end of the document.
func scriptCoverage(lower string) int {
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	total := len(lower)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			return covered
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			return covered + total - start
		}
		contentStart := start + tagClose + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
}
