// Package notion implements store.RecordStore over the Notion page-database API.
package notion

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// API defaults.
const (
	DefaultBaseURL = "https://api.notion.com"
	DefaultVersion = "2022-06-28"
	DefaultTimeout = 30 * time.Second
)

// Config controls the API client.
type Config struct {
	// BaseURL redirects API calls, e.g. to a proxy. Empty keeps api.notion.com.
	BaseURL string
	Token   string
	Version string
	// Limiter paces calls per API host. Nil disables pacing.
	Limiter    crawler.Limiter
	HTTPClient *http.Client
}

// APIError is a non-2xx response body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api %d %s: %s", e.Status, e.Code, e.Message)
}

// NewClient validates cfg and builds a notionapi client whose transport
// applies the limiter, the pinned API version and the base URL.
func NewClient(cfg Config) (*notionapi.Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notion token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse notion base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("notion base url %q must be absolute", cfg.BaseURL)
	}

	httpClient := &http.Client{Timeout: DefaultTimeout}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	next := httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	httpClient.Transport = &transport{
		next:    next,
		base:    base,
		version: cfg.Version,
		limiter: cfg.Limiter,
	}
	return notionapi.NewClient(notionapi.Token(cfg.Token), notionapi.WithHTTPClient(httpClient)), nil
}

type transport struct {
	next    http.RoundTripper
	base    *url.URL
	version string
	limiter crawler.Limiter
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context(), t.base.Host); err != nil {
			return nil, fmt.Errorf("notion rate limit: %w", err)
		}
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.Host = t.base.Host
	out.Header.Set("Notion-Version", t.version)
	return t.next.RoundTrip(out)
}

// apiError converts a notionapi error into an *APIError. A 404 also matches
// store.ErrNotFound.
func apiError(err error) error {
	var nerr *notionapi.Error
	if !errors.As(err, &nerr) {
		return err
	}
	converted := &APIError{Status: nerr.Status, Code: string(nerr.Code), Message: nerr.Message}
	if converted.Message == "" {
		converted.Message = http.StatusText(nerr.Status)
	}
	if nerr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", store.ErrNotFound, converted)
	}
	return converted
}
