package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	publishermemory "github.com/JakeFAU/pwa-discovery/internal/publisher/memory"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
	"github.com/JakeFAU/pwa-discovery/internal/storage/memory"
)

type fakeChecker struct {
	mu        sync.Mutex
	responses map[string]pwa.CheckResponse
	errs      map[string]error
	calls     []string
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{responses: map[string]pwa.CheckResponse{}, errs: map[string]error{}}
}

// site registers a check result for target. A site with a title and icon
// has a passing manifest and icon check.
func (f *fakeChecker) site(target, title, icon string, isPwa bool) *fakeChecker {
	link := "https://" + target
	resp := pwa.CheckResponse{
		URL:        link,
		IsPwa:      isPwa,
		Suggestion: pwa.Suggestion{Title: title, Icon: icon, Link: link},
		Strategy:   "fake",
	}
	if title != "" {
		resp.Checks.Manifest = pwa.CheckResult{Pass: true, Detail: "Valid manifest found", Data: &pwa.Manifest{Name: title}}
	} else {
		resp.Checks.Manifest = pwa.CheckResult{Detail: `No <link rel="manifest"> found in HTML`}
	}
	if icon != "" {
		resp.Checks.Icons = pwa.CheckResult{Pass: true, Detail: "1 icon(s) defined in manifest", BestIcon: icon}
	} else {
		resp.Checks.Icons = pwa.CheckResult{Detail: "No icons defined in manifest"}
	}
	resp.Checks.ServiceWorker = pwa.CheckResult{Pass: isPwa}
	f.responses[target] = resp
	return f
}

func (f *fakeChecker) fail(target string, err error) *fakeChecker {
	f.errs[target] = err
	return f
}

func (f *fakeChecker) Name() string { return "fake" }

func (f *fakeChecker) Check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return pwa.CheckResponse{}, err
	}
	if err, ok := f.errs[target]; ok {
		return pwa.CheckResponse{}, err
	}
	if resp, ok := f.responses[target]; ok {
		return resp, nil
	}
	return pwa.CheckResponse{URL: "https://" + target}, nil
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSources struct {
	domains []string
	err     error

	mu     sync.Mutex
	limits []int
}

func (f *fakeSources) Aggregate(_ context.Context, _ string, limit int) ([]string, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.domains...), nil
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.StatusError{Code: http.StatusNotFound, Text: "Not Found"}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

type seqIDs struct{}

func (seqIDs) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }

type failingIDs struct{}

func (failingIDs) NewRawID() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy exhausted") }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Stage
	for _, evt := range r.events {
		if evt.Stage != progress.StageItemDone {
			out = append(out, evt.Stage)
		}
	}
	return out
}

func (r *recordingEmitter) last() progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	svc       *Service
	checker   *fakeChecker
	sources   *fakeSources
	store     *memory.RecordStore
	blobs     *memory.BlobStore
	publisher *publishermemory.Publisher
	emitter   *recordingEmitter
}

// newHarness builds a Service over memory backends with all delays removed.
func newHarness(t *testing.T, mutate func(*Deps, *Settings)) *harness {
	t.Helper()
	h := &harness{
		checker:   newFakeChecker(),
		sources:   &fakeSources{},
		store:     memory.NewRecordStore(),
		blobs:     memory.NewBlobStore(),
		publisher: publishermemory.New(),
		emitter:   &recordingEmitter{},
	}
	deps := Deps{
		Checker:   h.checker,
		Fetcher:   &fakeFetcher{},
		Store:     h.store,
		Sources:   h.sources,
		Blobs:     h.blobs,
		Publisher: h.publisher,
		Progress:  h.emitter,
		Clock:     fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		IDs:       seqIDs{},
	}
	settings := DefaultSettings()
	settings.Discover.Delay = 0
	settings.Discover.HistoryPath = ""
	settings.Import.Delay = 0
	settings.Describe.ItemDelay = 0
	settings.Describe.BatchDelay = 0
	if mutate != nil {
		mutate(&deps, &settings)
	}
	svc, err := New(deps, settings)
	require.NoError(t, err)
	h.svc = svc
	return h
}
