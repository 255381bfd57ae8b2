package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

const couldNotAnalyze = "Could not analyze page"

func newResponse(pageURL, strategy string) pwa.CheckResponse {
	return pwa.CheckResponse{
		URL:        pageURL,
		Strategy:   strategy,
		Suggestion: pwa.Suggestion{Link: pageURL},
		Checks:     pwa.Checks{HTTPS: httpsCheck(pageURL)},
	}
}

func httpsCheck(pageURL string) pwa.CheckResult {
	if strings.HasPrefix(pageURL, "https://") {
		return pwa.CheckResult{Pass: true, Detail: "Site is served over HTTPS"}
	}
	return pwa.CheckResult{Detail: "Site is not served over HTTPS"}
}

// markPageFailure fills every page-dependent check after the page itself
// could not be fetched.
func markPageFailure(resp *pwa.CheckResponse, err error) {
	resp.Checks.Manifest = pwa.CheckResult{Detail: "Failed to fetch page: " + err.Error()}
	resp.Checks.ServiceWorker = pwa.CheckResult{Detail: couldNotAnalyze}
	resp.Checks.Icons = pwa.CheckResult{Detail: couldNotAnalyze}
	resp.Checks.Display = pwa.CheckResult{Detail: couldNotAnalyze}
	resp.IsPwa = false
}

// manifestCheck fetches and validates the manifest at href. The manifest is
// returned whenever it parsed, even if it fails validation.
func manifestCheck(ctx context.Context, fetcher crawler.Fetcher, href, pageURL string) (pwa.CheckResult, *pwa.Manifest) {
	if href == "" {
		return pwa.CheckResult{Detail: `No <link rel="manifest"> found in HTML`}, nil
	}
	manifestURL := extract.ResolveURL(href, pageURL)
	resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: manifestURL})
	if err != nil {
		return manifestFailure(err), nil
	}
	manifest, err := pwa.ParseManifest(resp.Body)
	if err != nil {
		return manifestFailure(err), nil
	}
	name := manifest.DisplayName()
	if name == "" {
		return pwa.CheckResult{
			Detail: `Manifest found but missing both "name" and "short_name"`,
			Data:   manifest,
		}, manifest
	}
	return pwa.CheckResult{
		Pass:   true,
		Detail: `Valid manifest found: "` + name + `"`,
		Data:   manifest,
	}, manifest
}

func manifestFailure(err error) pwa.CheckResult {
	msg := err.Error()
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		msg = fmt.Sprintf("HTTP %d", statusErr.Code)
	}
	return pwa.CheckResult{Detail: "Manifest link found but failed to fetch/parse: " + msg}
}

func iconsCheck(manifest *pwa.Manifest, pageURL string) pwa.CheckResult {
	if manifest == nil {
		return pwa.CheckResult{Detail: "Cannot check icons without manifest"}
	}
	if len(manifest.Icons) == 0 {
		return pwa.CheckResult{Detail: "No icons defined in manifest"}
	}
	best, ok := extract.FindBestIcon(manifest.Icons, pageURL)
	if !ok {
		return pwa.CheckResult{Detail: "Icons defined but no valid src found"}
	}
	return pwa.CheckResult{
		Pass:     true,
		Detail:   fmt.Sprintf("%d icon(s) defined in manifest", len(manifest.Icons)),
		BestIcon: best,
	}
}

var installableDisplayModes = map[string]bool{
	"standalone": true,
	"fullscreen": true,
	"minimal-ui": true,
}

func displayCheck(manifest *pwa.Manifest) pwa.CheckResult {
	if manifest == nil {
		return pwa.CheckResult{Detail: "Cannot check display mode without manifest"}
	}
	if manifest.Display == "" {
		return pwa.CheckResult{Detail: "No display mode specified in manifest"}
	}
	if installableDisplayModes[manifest.Display] {
		return pwa.CheckResult{Pass: true, Detail: `Display mode: "` + manifest.Display + `"`}
	}
	return pwa.CheckResult{
		Detail: `Display mode "` + manifest.Display +
			`" does not support installability (need standalone, fullscreen, or minimal-ui)`,
	}
}

// finish fills the manifest-derived checks, the verdict and the suggestion.
func finish(resp *pwa.CheckResponse, manifest *pwa.Manifest, metaDescription string, verdict Verdict) {
	resp.Checks.Icons = iconsCheck(manifest, resp.URL)
	resp.Checks.Display = displayCheck(manifest)
	resp.IsPwa = verdict.Qualifies(resp.Checks)

	description := metaDescription
	if manifest != nil && manifest.Description != "" {
		description = manifest.Description
	}
	resp.Suggestion = pwa.Suggestion{
		Title:       manifest.DisplayName(),
		Icon:        resp.Checks.Icons.BestIcon,
		Description: description,
		Link:        resp.URL,
	}
}
