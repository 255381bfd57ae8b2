package sources

import (
	"bufio"
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// Tranco defaults.
const (
	DefaultTrancoListPage     = "https://tranco-list.eu/"
	DefaultTrancoDownloadBase = "https://tranco-list.eu/download_daily"
)

// DefaultFallbackDomains is used whenever the Tranco list cannot be read.
var DefaultFallbackDomains = []string{
	"google.com", "youtube.com", "facebook.com", "twitter.com", "instagram.com",
	"wikipedia.org", "yahoo.com", "reddit.com", "amazon.com", "netflix.com",
	"microsoft.com", "apple.com", "linkedin.com", "pinterest.com", "tumblr.com",
	"ebay.com", "paypal.com", "github.com", "stackoverflow.com", "adobe.com",
	"spotify.com", "twitch.tv", "discord.com", "zoom.us", "slack.com",
	"notion.so", "figma.com", "canva.com", "trello.com", "asana.com",
}

var trancoListIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/list/([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)/download/([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)list_id["']?\s*[:=]\s*["']?([A-Z0-9]+)`),
}

// TrancoConfig configures the Tranco source.
type TrancoConfig struct {
	ListPageURL  string
	DownloadBase string
	Fallback     []string
}

// Tranco reads the daily Tranco research top-sites list.
type Tranco struct {
	fetcher crawler.Fetcher
	cfg     TrancoConfig
	logger  *zap.Logger
}

// NewTranco builds the Tranco source.
func NewTranco(fetcher crawler.Fetcher, cfg TrancoConfig, logger *zap.Logger) *Tranco {
	if cfg.ListPageURL == "" {
		cfg.ListPageURL = DefaultTrancoListPage
	}
	if cfg.DownloadBase == "" {
		cfg.DownloadBase = DefaultTrancoDownloadBase
	}
	cfg.DownloadBase = strings.TrimRight(cfg.DownloadBase, "/")
	if len(cfg.Fallback) == 0 {
		cfg.Fallback = DefaultFallbackDomains
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tranco{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Name identifies the source in logs and metrics.
func (t *Tranco) Name() string {
	return "tranco"
}

// Fetch returns up to limit domains in rank order. It never fails: any error
// or an empty list yields the fallback domains.
func (t *Tranco) Fetch(ctx context.Context, limit int) []string {
	page, err := t.fetcher.Fetch(ctx, crawler.FetchRequest{URL: t.cfg.ListPageURL})
	var statusErr *crawler.StatusError
	if err != nil && !errors.As(err, &statusErr) {
		t.logger.Warn("tranco list page unavailable, using fallback", zap.Error(err))
		return t.fallback(limit)
	}

	csvURL := t.cfg.DownloadBase + "/top-1m.csv"
	if id, ok := findListID(string(page.Body)); ok {
		csvURL = t.cfg.DownloadBase + "/" + id + "/top-1m.csv"
	}
	t.logger.Info("fetching tranco list", zap.String("url", csvURL))

	resp, err := t.fetcher.Fetch(ctx, crawler.FetchRequest{URL: csvURL})
	if err != nil {
		t.logger.Warn("tranco csv download failed, using fallback", zap.String("url", csvURL), zap.Error(err))
		return t.fallback(limit)
	}

	domains := parseTrancoCSV(string(resp.Body), limit)
	if len(domains) == 0 {
		return t.fallback(limit)
	}
	t.logger.Info("fetched tranco domains", zap.Int("count", len(domains)))
	return domains
}

func (t *Tranco) fallback(limit int) []string {
	n := len(t.cfg.Fallback)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), t.cfg.Fallback[:n]...)
}

func findListID(html string) (string, bool) {
	for _, re := range trancoListIDPatterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// parseTrancoCSV reads "rank,domain" lines. A line without a comma is taken
// as a bare domain.
func parseTrancoCSV(body string, limit int) []string {
	domains := []string{}
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if limit > 0 && len(domains) >= limit {
			break
		}
		parts := strings.Split(scanner.Text(), ",")
		domain := strings.TrimSpace(parts[0])
		if len(parts) >= 2 {
			domain = strings.TrimSpace(parts[1])
		}
		if domain != "" && strings.Contains(domain, ".") {
			domains = append(domains, domain)
		}
	}
	return domains
}
