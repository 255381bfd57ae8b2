package classifier

import (
	"context"
	"net/http"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/fetcher/headless"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	errs      map[string]error
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]crawler.FetchResponse{},
		errs:      map[string]error{},
	}
}

func (f *fakeFetcher) page(url, body string) *fakeFetcher {
	f.responses[url] = crawler.FetchResponse{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}
	return f
}

func (f *fakeFetcher) fail(url string, err error) *fakeFetcher {
	f.errs[url] = err
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if err, ok := f.errs[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{}, &crawler.StatusError{Code: http.StatusNotFound, Text: "Not Found"}
}

type fakeProber struct {
	result headless.ProbeResult
	err    error
	calls  int
}

func (p *fakeProber) Probe(context.Context, string, http.Header) (headless.ProbeResult, error) {
	p.calls++
	return p.result, p.err
}

type promoteAlways bool

func (p promoteAlways) ShouldPromote(crawler.FetchResponse) bool {
	return bool(p)
}
