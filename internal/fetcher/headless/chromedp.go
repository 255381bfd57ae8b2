// Package headless probes pages in headless Chrome to observe runtime PWA
// signals that static HTML cannot show, such as a registered service worker.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ErrUnavailable is returned when no browser is configured.
var ErrUnavailable = errors.New("headless browser not configured")

// Config controls the behavior of the headless prober.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ServiceWorkerWait bounds how long the probe waits for
	// navigator.serviceWorker.ready to settle.
	ServiceWorkerWait time.Duration
}

// ProbeResult is what a rendered page reveals about itself.
type ProbeResult struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	HTML         string
	ManifestHref string
	SWSupported  bool
	SWRegistered bool
	SWActive     bool
	SWScope      string
	Duration     time.Duration
}

// Prober renders a page and reports its runtime PWA state.
type Prober interface {
	Probe(ctx context.Context, url string, headers http.Header) (ProbeResult, error)
}

// Browser implements Prober using chromedp and headless Chrome.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a prober backed by chromedp. The browser process is
// started lazily on the first probe.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and stops the browser.
func (b *Browser) Close() {
	b.allocCancel()
}

// swState mirrors the object returned by probeScript.
type swState struct {
	Supported  bool   `json:"supported"`
	Registered bool   `json:"registered"`
	Active     bool   `json:"active"`
	Scope      string `json:"scope"`
	Manifest   string `json:"manifest"`
}

// probeScript resolves to the service-worker registration state and the
// absolute manifest URL. The ready promise never settles on pages without a
// worker, so it races a timer.
const probeScript = `(async () => {
  const out = { supported: false, registered: false, active: false, scope: "", manifest: "" };
  const link = document.querySelector('link[rel~="manifest"]');
  if (link && link.href) { out.manifest = link.href; }
  if (!('serviceWorker' in navigator)) { return out; }
  out.supported = true;
  try {
    const reg = await Promise.race([
      navigator.serviceWorker.ready,
      new Promise((resolve) => setTimeout(() => resolve(null), %d)),
    ]);
    const found = reg || await navigator.serviceWorker.getRegistration();
    if (found) {
      out.registered = true;
      out.active = !!found.active;
      out.scope = found.scope || "";
    }
  } catch (e) {}
  return out;
})()`

// Probe navigates to url and evaluates the service-worker probe script.
func (b *Browser) Probe(ctx context.Context, url string, headers http.Header) (ProbeResult, error) {
	if err := b.acquire(ctx); err != nil {
		return ProbeResult{}, err
	}
	defer b.release()

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.navTimeout()+b.swWait())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var (
		html     string
		finalURL string
		state    swState
	)
	actions := []chromedp.Action{
		b.networkSetupAction(headers),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(probeScript, b.swWait().Milliseconds()), &state, awaitPromise),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return ProbeResult{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, respHeaders, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	return ProbeResult{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      respHeaders,
		HTML:         html,
		ManifestHref: state.Manifest,
		SWSupported:  state.Supported,
		SWRegistered: state.Registered,
		SWActive:     state.Active,
		SWScope:      state.Scope,
		Duration:     time.Since(start),
	}, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (b *Browser) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

func (b *Browser) swWait() time.Duration {
	if b.cfg.ServiceWorkerWait > 0 {
		return b.cfg.ServiceWorkerWait
	}
	return 3 * time.Second
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

// capture records the first document response, which is the navigation
// itself rather than an iframe loaded later.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		dst[k] = append([]string(nil), values...)
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
