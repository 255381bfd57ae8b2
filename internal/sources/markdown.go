package sources

import (
	"context"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// DefaultMarkdownURLs are the curated awesome-pwa READMEs.
var DefaultMarkdownURLs = []string{
	"https://raw.githubusercontent.com/hemanth/awesome-pwa/refs/heads/master/README.md",
	"https://raw.githubusercontent.com/sandermangel/awesome-pwa-ecommerce/refs/heads/master/README.md",
	"https://raw.githubusercontent.com/hzzheng/awesome-pwa/refs/heads/master/README.md",
	"https://raw.githubusercontent.com/sundway/awesome-pwa/refs/heads/master/README.md",
	"https://raw.githubusercontent.com/nabil6391/awesome-pwa/refs/heads/master/README.md",
}

var (
	httpPrefix       = regexp.MustCompile(`^https?://`)
	bareURLPattern   = regexp.MustCompile(`https?://[^\s<>\[\](),"']+`)
	trailingPunct    = regexp.MustCompile(`[.,;:!?]+$`)
	nonAppURLFilters = []*regexp.Regexp{
		regexp.MustCompile(`github\.com/.*/(issues|pull|blob|tree|commit|raw)`),
		regexp.MustCompile(`github\.com/[^/]+/[^/]+$`),
		regexp.MustCompile(`npmjs\.(com|org)`),
		regexp.MustCompile(`developer\.mozilla\.org`),
		regexp.MustCompile(`web\.dev/`),
		regexp.MustCompile(`caniuse\.com`),
		regexp.MustCompile(`shields\.io`),
		regexp.MustCompile(`badge`),
		regexp.MustCompile(`img\.shields`),
		regexp.MustCompile(`travis-ci`),
		regexp.MustCompile(`circleci`),
		regexp.MustCompile(`coveralls`),
		regexp.MustCompile(`codecov`),
		regexp.MustCompile(`\.md$`),
		regexp.MustCompile(`\.json$`),
		regexp.MustCompile(`raw\.githubusercontent\.com`),
	}
)

// Markdown pulls app URLs out of curated markdown lists.
type Markdown struct {
	fetcher crawler.Fetcher
	urls    []string
	logger  *zap.Logger
}

// NewMarkdown builds the markdown source. An empty url list uses
// DefaultMarkdownURLs.
func NewMarkdown(fetcher crawler.Fetcher, urls []string, logger *zap.Logger) *Markdown {
	if len(urls) == 0 {
		urls = DefaultMarkdownURLs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Markdown{fetcher: fetcher, urls: urls, logger: logger}
}

// Name identifies the source in logs and metrics.
func (m *Markdown) Name() string {
	return "github"
}

// Fetch walks every configured list. A failing list is skipped.
func (m *Markdown) Fetch(ctx context.Context) []string {
	set := newOrderedSet()
	for _, sourceURL := range m.urls {
		if ctx.Err() != nil {
			break
		}
		resp, err := m.fetcher.Fetch(ctx, crawler.FetchRequest{URL: sourceURL})
		if err != nil {
			m.logger.Info("skipping markdown source", zap.String("url", sourceURL), zap.Error(err))
			continue
		}
		urls := ExtractURLs(resp.Body)
		set.addAll(urls)
		m.logger.Info("extracted urls from markdown source",
			zap.String("url", sourceURL),
			zap.Int("count", len(urls)),
		)
	}
	m.logger.Info("markdown sources done", zap.Int("unique_urls", set.len()))
	return set.values()
}

// ExtractURLs returns the app-looking URLs of a markdown document: link
// destinations first, then bare URLs, deduplicated in order of appearance.
func ExtractURLs(source []byte) []string {
	set := newOrderedSet()
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest []byte
		switch node := n.(type) {
		case *ast.Link:
			dest = node.Destination
		case *ast.Image:
			dest = node.Destination
		default:
			return ast.WalkContinue, nil
		}
		if httpPrefix.Match(dest) {
			set.addIfApp(string(dest))
		}
		return ast.WalkContinue, nil
	})

	raw := string(source)
	for _, loc := range bareURLPattern.FindAllStringIndex(raw, -1) {
		if loc[0] > 0 && raw[loc[0]-1] == '(' {
			continue
		}
		set.addIfApp(raw[loc[0]:loc[1]])
	}
	return set.values()
}

// cleanURL strips trailing punctuation and the fragment.
func cleanURL(u string) string {
	u = trailingPunct.ReplaceAllString(u, "")
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return u
}

func isAppURL(u string) bool {
	for _, re := range nonAppURLFilters {
		if re.MatchString(u) {
			return false
		}
	}
	return true
}

type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *orderedSet) addIfApp(raw string) {
	if u := cleanURL(raw); u != "" && isAppURL(u) {
		s.add(u)
	}
}

func (s *orderedSet) addAll(values []string) {
	for _, v := range values {
		s.add(v)
	}
}

func (s *orderedSet) len() int {
	return len(s.order)
}

func (s *orderedSet) values() []string {
	return append([]string{}, s.order...)
}
