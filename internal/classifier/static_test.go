package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/pwa-discovery/internal/fetcher/colly"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	"github.com/JakeFAU/pwa-discovery/internal/policy/simple"
)

const pwaPage = `<html><head>
<meta name="description" content="Meta text">
<link rel="manifest" href="/manifest.json">
</head><body><script>navigator.serviceWorker.register('/sw.js')</script></body></html>`

const validManifest = `{
  "name": "Notes",
  "short_name": "N",
  "display": "standalone",
  "icons": [{"src": "/icons/192.png", "sizes": "192x192"}, {"src": "/icons/512.png", "sizes": "512x512"}]
}`

func TestStaticFullPWA(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		page("https://notes.test", pwaPage).
		page("https://notes.test/manifest.json", validManifest)

	resp, err := NewStatic(f, nil, nil, nil).Check(context.Background(), "notes.test")
	require.NoError(t, err)

	require.Equal(t, "https://notes.test", resp.URL)
	require.True(t, resp.IsPwa)
	require.Equal(t, NameStatic, resp.Strategy)
	require.Equal(t, "Site is served over HTTPS", resp.Checks.HTTPS.Detail)
	require.Equal(t, `Valid manifest found: "Notes"`, resp.Checks.Manifest.Detail)
	require.NotNil(t, resp.Checks.Manifest.Data)
	require.True(t, resp.Checks.ServiceWorker.Pass)
	require.Equal(t, "2 icon(s) defined in manifest", resp.Checks.Icons.Detail)
	require.Equal(t, "https://notes.test/icons/512.png", resp.Checks.Icons.BestIcon)
	require.Equal(t, `Display mode: "standalone"`, resp.Checks.Display.Detail)
	require.Equal(t, "Notes", resp.Suggestion.Title)
	require.Equal(t, "https://notes.test/icons/512.png", resp.Suggestion.Icon)
	require.Equal(t, "Meta text", resp.Suggestion.Description)
	require.Equal(t, "https://notes.test", resp.Suggestion.Link)
}

func TestStaticPageFetchFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().fail("http://down.test", errors.New("connection refused"))

	resp, err := NewStatic(f, nil, nil, nil).Check(context.Background(), "http://down.test")
	require.NoError(t, err)
	require.False(t, resp.IsPwa)
	require.False(t, resp.Checks.HTTPS.Pass)
	require.Equal(t, "Site is not served over HTTPS", resp.Checks.HTTPS.Detail)
	require.Equal(t, "Failed to fetch page: connection refused", resp.Checks.Manifest.Detail)
	for _, c := range []string{resp.Checks.ServiceWorker.Detail, resp.Checks.Icons.Detail, resp.Checks.Display.Detail} {
		require.Equal(t, "Could not analyze page", c)
	}
	require.Equal(t, "http://down.test", resp.Suggestion.Link)
	require.Empty(t, resp.Suggestion.Title)
}

func TestStaticPageHTTPError(t *testing.T) {
	t.Parallel()

	resp, err := NewStatic(newFakeFetcher(), nil, nil, nil).Check(context.Background(), "https://gone.test")
	require.NoError(t, err)
	require.Equal(t, "Failed to fetch page: HTTP 404 Not Found", resp.Checks.Manifest.Detail)
}

func TestStaticManifestVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		page          string
		manifest      string
		manifestFound bool
		wantManifest  string
		wantIcons     string
		wantDisplay   string
		wantTitle     string
		wantDesc      string
	}{
		{
			name:         "no manifest link",
			page:         `<html><meta name="description" content="d"></html>`,
			wantManifest: `No <link rel="manifest"> found in HTML`,
			wantIcons:    "Cannot check icons without manifest",
			wantDisplay:  "Cannot check display mode without manifest",
			wantDesc:     "d",
		},
		{
			name:         "manifest 404",
			page:         `<link rel="manifest" href="/m.json">`,
			wantManifest: "Manifest link found but failed to fetch/parse: HTTP 404",
			wantIcons:    "Cannot check icons without manifest",
			wantDisplay:  "Cannot check display mode without manifest",
		},
		{
			name:          "manifest not json",
			page:          `<link rel="manifest" href="/m.json">`,
			manifest:      `<html>oops</html>`,
			manifestFound: true,
			wantIcons:     "Cannot check icons without manifest",
			wantDisplay:   "Cannot check display mode without manifest",
		},
		{
			name:          "manifest without names",
			page:          `<link rel="manifest" href="/m.json">`,
			manifest:      `{"display":"browser","description":"from manifest"}`,
			manifestFound: true,
			wantManifest:  `Manifest found but missing both "name" and "short_name"`,
			wantIcons:     "No icons defined in manifest",
			wantDisplay:   `Display mode "browser" does not support installability (need standalone, fullscreen, or minimal-ui)`,
			wantDesc:      "from manifest",
		},
		{
			name:          "short name only and srcless icons",
			page:          `<link rel="manifest" href="/m.json">`,
			manifest:      `{"short_name":"Shorty","icons":[{"sizes":"512x512"}]}`,
			manifestFound: true,
			wantManifest:  `Valid manifest found: "Shorty"`,
			wantIcons:     "Icons defined but no valid src found",
			wantDisplay:   "No display mode specified in manifest",
			wantTitle:     "Shorty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeFetcher().page("https://site.test", tc.page)
			if tc.manifestFound {
				f.page("https://site.test/m.json", tc.manifest)
			}
			resp, err := NewStatic(f, nil, nil, nil).Check(context.Background(), "https://site.test")
			require.NoError(t, err)
			require.False(t, resp.IsPwa)
			if tc.wantManifest != "" {
				require.Equal(t, tc.wantManifest, resp.Checks.Manifest.Detail)
			} else {
				require.Contains(t, resp.Checks.Manifest.Detail, "Manifest link found but failed to fetch/parse: ")
			}
			require.Equal(t, tc.wantIcons, resp.Checks.Icons.Detail)
			require.Equal(t, tc.wantDisplay, resp.Checks.Display.Detail)
			require.Equal(t, tc.wantTitle, resp.Suggestion.Title)
			require.Equal(t, tc.wantDesc, resp.Suggestion.Description)
		})
	}
}

func TestStaticVerdictIgnoresIconsAndDisplayByDefault(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		page("https://bare.test", `<link rel="manifest" href="m.json"><script>navigator.serviceWorker.register("/w.js")</script>`).
		page("https://bare.test/m.json", `{"name":"Bare"}`)

	resp, err := NewStatic(f, nil, nil, nil).Check(context.Background(), "https://bare.test")
	require.NoError(t, err)
	require.True(t, resp.IsPwa)
	require.False(t, resp.Checks.Icons.Pass)

	strict := NewStatic(f, nil, simple.New(simple.Config{RequireIcons: true}), nil)
	resp, err = strict.Check(context.Background(), "https://bare.test")
	require.NoError(t, err)
	require.False(t, resp.IsPwa)
}

func TestStaticWithDOMExtractor(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		page("https://notes.test", pwaPage).
		page("https://notes.test/manifest.json", validManifest)

	resp, err := NewStatic(f, extract.NewDOM(), nil, nil).Check(context.Background(), "https://notes.test")
	require.NoError(t, err)
	require.True(t, resp.IsPwa)
}

func TestStaticReturnsErrorOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(newFakeFetcher(), nil, nil, nil).Check(ctx, "https://x.test")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStaticEndToEndOverTLS(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pwaPage))
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		_, _ = w.Write([]byte(validManifest))
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout:   5 * time.Second,
		Transport: srv.Client().Transport,
	})
	resp, err := NewStatic(fetcher, nil, nil, nil).Check(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, resp.IsPwa, "%+v", resp.Checks)
	require.Equal(t, srv.URL+"/icons/512.png", resp.Suggestion.Icon)
}

func TestStaticEndToEndOverPlainHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pwaPage))
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		_, _ = w.Write([]byte(validManifest))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	resp, err := NewStatic(fetcher, nil, nil, nil).Check(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, srv.URL, resp.URL)
	require.False(t, resp.IsPwa)
	require.False(t, resp.Checks.HTTPS.Pass)
	require.Equal(t, "Site is not served over HTTPS", resp.Checks.HTTPS.Detail)
	require.True(t, resp.Checks.Manifest.Pass, resp.Checks.Manifest.Detail)
	require.True(t, resp.Checks.ServiceWorker.Pass)
	require.Equal(t, srv.URL+"/icons/512.png", resp.Checks.Icons.BestIcon)
}

var _ crawler.Fetcher = (*fakeFetcher)(nil)
