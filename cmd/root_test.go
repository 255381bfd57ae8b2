package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
)

type fakeDirectory struct {
	mu          sync.Mutex
	checked     []string
	added       []pipeline.AddRequest
	discover    pipeline.DiscoverRequest
	discoverErr error
	crawl       pipeline.CrawlRequest
	imported    pipeline.ImportRequest
	described   pipeline.DescribeRequest
	deduped     pipeline.DedupeRequest
}

func (f *fakeDirectory) Check(_ context.Context, target string) (pwa.CheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, target)
	return pwa.CheckResponse{URL: target, IsPwa: true, Strategy: "static"}, nil
}

func (f *fakeDirectory) Add(_ context.Context, req pipeline.AddRequest) (pipeline.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, req)
	return pipeline.AddResult{ID: "rec-1", Message: "ok"}, nil
}

func (f *fakeDirectory) Discover(_ context.Context, req pipeline.DiscoverRequest) (pipeline.DiscoverSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discover = req
	return pipeline.DiscoverSummary{RunID: "run-1", Source: req.Source, TotalDomains: 4, Checked: 2}, f.discoverErr
}

func (f *fakeDirectory) Crawl(_ context.Context, req pipeline.CrawlRequest) (pipeline.CrawlSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawl = req
	return pipeline.CrawlSummary{RunID: "run-2", DataPath: req.DataPath}, nil
}

func (f *fakeDirectory) Import(_ context.Context, req pipeline.ImportRequest) (pipeline.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = req
	return pipeline.RunSummary{RunID: "run-3", Op: "import", Summary: crawler.Summary{Total: 3, Added: 2}}, nil
}

func (f *fakeDirectory) Describe(_ context.Context, req pipeline.DescribeRequest) (pipeline.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.described = req
	return pipeline.RunSummary{RunID: "run-4", Op: "describe"}, nil
}

func (f *fakeDirectory) Dedupe(_ context.Context, req pipeline.DedupeRequest) (pipeline.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deduped = req
	return pipeline.RunSummary{RunID: "run-5", Op: "dedupe", DryRun: req.DryRun}, nil
}

type fakeApp struct {
	dir    *fakeDirectory
	ran    bool
	closed int
}

func (a *fakeApp) Directory() Directory { return a.dir }

func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (a *fakeApp) Run(context.Context) error {
	a.ran = true
	return nil
}

func (a *fakeApp) Close(context.Context) error {
	a.closed++
	return nil
}

func execute(t *testing.T, app *fakeApp, args ...string) (string, error) {
	t.Helper()
	lc := &lifecycle{}
	root := newRootCmd(func(context.Context, string) (App, error) { return app, nil }, lc)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	lc.close()
	return out.String(), err
}

func TestCheckCommandPrintsJSON(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	out, err := execute(t, app, "check", "https://app.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"https://app.example.com"}, app.dir.checked)

	var resp pwa.CheckResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.IsPwa)
	assert.Equal(t, "static", resp.Strategy)
	assert.Equal(t, 1, app.closed)
}

func TestAddCommandPassesFlags(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	_, err := execute(t, app, "add",
		"--title", "Squoosh",
		"--link", "https://squoosh.app",
		"--icon", "https://squoosh.app/icon.png",
		"--tag", "Tools", "--tag", "Images",
	)
	require.NoError(t, err)
	require.Len(t, app.dir.added, 1)
	assert.Equal(t, "Squoosh", app.dir.added[0].Title)
	assert.Equal(t, []string{"Tools", "Images"}, app.dir.added[0].Tags)
}

func TestDiscoverCommandYAML(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	out, err := execute(t, app, "--format", "yaml", "discover", "--source", "all", "--limit", "20", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, pipeline.DiscoverRequest{Source: "all", Limit: 20, DryRun: true}, app.dir.discover)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, 4, decoded["totalDomains"])
}

func TestDiscoverCommandFlushesPartialSummary(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{discoverErr: context.Canceled}}
	out, err := execute(t, app, "discover")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out, `"runId": "run-1"`)
	assert.Equal(t, 1, app.closed)
}

func TestBatchCommandsForwardRequests(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	_, err := execute(t, app, "crawl", "--candidates", "list.txt", "--data", "pwa.json", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, pipeline.CrawlRequest{CandidatesPath: "list.txt", DataPath: "pwa.json", Limit: 5}, app.dir.crawl)

	_, err = execute(t, app, "import", "entries.json", "--concurrency", "2")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ImportRequest{Path: "entries.json", Concurrency: 2}, app.dir.imported)

	_, err = execute(t, app, "describe", "--dry-run")
	require.NoError(t, err)
	assert.True(t, app.dir.described.DryRun)

	out, err := execute(t, app, "dedupe", "--dry-run")
	require.NoError(t, err)
	assert.True(t, app.dir.deduped.DryRun)
	assert.Contains(t, out, `"op": "dedupe"`)
}

func TestServeCommandRunsApp(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	_, err := execute(t, app, "serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	app := &fakeApp{dir: &fakeDirectory{}}
	_, err := execute(t, app, "--format", "xml", "dedupe")
	require.ErrorContains(t, err, "--format")
	assert.Zero(t, app.closed)
}

func TestRootReportsFactoryFailure(t *testing.T) {
	t.Parallel()

	root := newRootCmd(func(context.Context, string) (App, error) {
		return nil, errors.New("store unreachable")
	}, &lifecycle{})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"dedupe"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "store unreachable")
}

func TestResolveAppWithoutApp(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
