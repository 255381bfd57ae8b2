package sources

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

var errNetwork = errors.New("dial tcp: connection refused")

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) page(url, body string) *fakeFetcher {
	f.responses[url] = body
	return f
}

func (f *fakeFetcher) fail(url string, err error) *fakeFetcher {
	f.errs[url] = err
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	if body, ok := f.responses[req.URL]; ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound},
		&crawler.StatusError{Code: http.StatusNotFound, Text: "Not Found"}
}
