package extract

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

var swRegisterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`navigator\s*\.\s*serviceWorker\s*\.\s*register`),
	regexp.MustCompile(`serviceWorker\s*in\s*navigator`),
	regexp.MustCompile(`navigator\s*\[\s*['"]serviceWorker['"]\s*\]`),
}

// swLiterals are matched case-insensitively, so they are kept lowercase.
var swLiterals = []string{
	"workbox",
	"sw.js",
	"service-worker.js",
	"service_worker.js",
	"sw-register",
	"registersw",
}

const precacheMarker = "__precacheManifest"

// signatureScanner counts distinct service-worker signatures in a source.
// The Aho-Corasick matcher keeps per-call state, so calls are serialized.
type signatureScanner struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

func newSignatureScanner() *signatureScanner {
	return &signatureScanner{matcher: ahocorasick.NewStringMatcher(swLiterals)}
}

func (s *signatureScanner) count(source string) int {
	matched := 0
	for _, re := range swRegisterPatterns {
		if re.MatchString(source) {
			matched++
		}
	}

	s.mu.Lock()
	hits := s.matcher.Match([]byte(strings.ToLower(source)))
	s.mu.Unlock()
	distinct := make(map[int]struct{}, len(hits))
	for _, idx := range hits {
		distinct[idx] = struct{}{}
	}
	matched += len(distinct)

	if strings.Contains(source, precacheMarker) {
		matched++
	}
	return matched
}

func (s *signatureScanner) detect(source string) SWDetection {
	matched := s.count(source)
	if matched == 0 {
		return SWDetection{Detail: "No Service Worker registration patterns found in HTML source"}
	}
	return SWDetection{
		Found:   true,
		Matched: matched,
		Detail:  fmt.Sprintf("Service Worker registration detected (%d pattern(s) matched)", matched),
	}
}
