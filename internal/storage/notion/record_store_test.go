package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

type captured struct {
	method string
	path   string
	body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []captured
	handler  func(w http.ResponseWriter, c captured)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := captured{method: r.Method, path: r.URL.Path}
	if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("Notion-Version") != DefaultVersion {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
		return
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&c.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	f.handler(w, c)
}

func newTestStore(t *testing.T, handler func(w http.ResponseWriter, c captured)) (*RecordStore, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handler: handler}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)
	s, err := NewRecordStore(client, "db-1")
	require.NoError(t, err)
	return s, api
}

const squooshPage = `{
	"id": "page-1",
	"created_time": "2024-05-01T10:00:00.000Z",
	"archived": false,
	"properties": {
		"title": {"type": "title", "title": [{"plain_text": "Squoosh"}]},
		"link": {"type": "url", "url": "https://squoosh.app"},
		"icon": {"type": "url", "url": "https://squoosh.app/icon.png"},
		"description": {"type": "rich_text", "rich_text": [{"plain_text": "Image "}, {"plain_text": "compression"}]},
		"tags": {"type": "multi_select", "multi_select": [{"name": "Imported"}]}
	}
}`

func TestNewClientRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.EqualError(t, err, "notion token is required")
}

func TestQueryByFieldEqualsFollowsCursor(t *testing.T) {
	t.Parallel()

	s, api := newTestStore(t, func(w http.ResponseWriter, c captured) {
		if _, ok := c.body["start_cursor"]; ok {
			_, _ = w.Write([]byte(`{"results": [], "has_more": false, "next_cursor": null}`))
			return
		}
		_, _ = w.Write([]byte(`{"results": [` + squooshPage + `], "has_more": true, "next_cursor": "c2"}`))
	})

	records, err := s.QueryByFieldEquals(context.Background(), "", store.FieldLink, "https://squoosh.app")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "page-1", records[0].ID)
	require.Equal(t, "Squoosh", records[0].Title)
	require.Equal(t, "Image compression", records[0].Description)
	require.Equal(t, []string{"Imported"}, records[0].Tags)

	require.Len(t, api.requests, 2)
	first := api.requests[0]
	require.Equal(t, http.MethodPost, first.method)
	require.Equal(t, "/v1/databases/db-1/query", first.path)
	filter := first.body["filter"].(map[string]any)
	require.Equal(t, "link", filter["property"])
	require.Equal(t, map[string]any{"equals": "https://squoosh.app"}, filter["rich_text"])
	require.Equal(t, "c2", api.requests[1].body["start_cursor"])
}

func TestQueryByFieldEqualsTitleFilter(t *testing.T) {
	t.Parallel()

	s, api := newTestStore(t, func(w http.ResponseWriter, _ captured) {
		_, _ = w.Write([]byte(`{"results": [], "has_more": false}`))
	})

	records, err := s.QueryByFieldEquals(context.Background(), "db-2", store.FieldTitle, "Squoosh")
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, "/v1/databases/db-2/query", api.requests[0].path)
	filter := api.requests[0].body["filter"].(map[string]any)
	require.Equal(t, "title", filter["property"])
	require.Contains(t, filter, "rich_text")

	_, err = s.QueryByFieldEquals(context.Background(), "", "owner", "x")
	require.ErrorIs(t, err, store.ErrUnknownField)
}

func TestInsertRecordCreatesPage(t *testing.T) {
	t.Parallel()

	s, api := newTestStore(t, func(w http.ResponseWriter, _ captured) {
		_, _ = w.Write([]byte(`{"id": "page-9"}`))
	})

	res, err := s.InsertRecord(context.Background(), "", store.Entry{
		Title: "Squoosh",
		Link:  "https://squoosh.app",
		Icon:  "https://squoosh.app/icon.png",
		Tags:  []string{"Auto-discovered"},
	})
	require.NoError(t, err)
	require.Equal(t, "page-9", res.ID)

	req := api.requests[0]
	require.Equal(t, "/v1/pages", req.path)
	parent := req.body["parent"].(map[string]any)
	require.Equal(t, "database_id", parent["type"])
	require.Equal(t, "db-1", parent["database_id"])
	props := req.body["properties"].(map[string]any)
	assert.Equal(t, "https://squoosh.app", props["link"].(map[string]any)["url"])
	tags := props["tags"].(map[string]any)["multi_select"].([]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "Auto-discovered", tags[0].(map[string]any)["name"])
	assert.NotContains(t, props, "short_name")
	title := props["title"].(map[string]any)["title"].([]any)
	assert.Equal(t, map[string]any{"content": "Squoosh"}, title[0].(map[string]any)["text"])
}

func TestPaginatedQueryPassesCursorThrough(t *testing.T) {
	t.Parallel()

	s, api := newTestStore(t, func(w http.ResponseWriter, _ captured) {
		_, _ = w.Write([]byte(`{"results": [` + squooshPage + `], "has_more": true, "next_cursor": "next-1"}`))
	})

	page, err := s.PaginatedQuery(context.Background(), "", store.FieldTitle, "start-1")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.True(t, page.HasMore)
	require.Equal(t, "next-1", page.NextCursor)

	body := api.requests[0].body
	require.Equal(t, "start-1", body["start_cursor"])
	require.EqualValues(t, store.PageSize, body["page_size"])
	sorts := body["sorts"].([]any)
	require.Len(t, sorts, 1)
	require.Equal(t, "title", sorts[0].(map[string]any)["property"])
	require.Equal(t, "ascending", sorts[0].(map[string]any)["direction"])
}

func TestUpdateAndArchive(t *testing.T) {
	t.Parallel()

	s, api := newTestStore(t, func(w http.ResponseWriter, c captured) {
		if c.path == "/v1/pages/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find page"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": "page-1"}`))
	})

	require.NoError(t, s.UpdateRecord(context.Background(), "", "page-1", store.Entry{Title: "Squoosh", Description: "Fast"}))
	require.NoError(t, s.ArchiveRecord(context.Background(), "", "page-1"))
	require.Equal(t, http.MethodPatch, api.requests[0].method)
	require.Equal(t, true, api.requests[1].body["archived"])

	err := s.ArchiveRecord(context.Background(), "", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "object_not_found", apiErr.Code)
}

func TestAPIErrorsSurface(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{handler: func(http.ResponseWriter, captured) {}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, Token: "wrong"})
	require.NoError(t, err)
	s, err := NewRecordStore(client, "db-1")
	require.NoError(t, err)

	_, err = s.InsertRecord(context.Background(), "", store.Entry{Title: "x"})
	require.EqualError(t, err, "create page: notion api 401 unauthorized: API token is invalid.")
}

type countingLimiter struct {
	mu   sync.Mutex
	keys []string
}

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return nil
}

func TestClientPacesCallsThroughLimiter(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{handler: func(w http.ResponseWriter, _ captured) {
		_, _ = w.Write([]byte(`{"results": [], "has_more": false}`))
	}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	limiter := &countingLimiter{}
	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret", Limiter: limiter})
	require.NoError(t, err)
	s, err := NewRecordStore(client, "db-1")
	require.NoError(t, err)

	_, err = s.PaginatedQuery(context.Background(), "", "", "")
	require.NoError(t, err)
	_, err = s.QueryByFieldEquals(context.Background(), "", store.FieldLink, "https://squoosh.app")
	require.NoError(t, err)

	host := strings.TrimPrefix(srv.URL, "http://")
	require.Equal(t, []string{host, host}, limiter.keys)
	require.Len(t, api.requests, 2)
	sorts := api.requests[0].body["sorts"].([]any)
	require.Equal(t, "created_time", sorts[0].(map[string]any)["timestamp"])
}

func TestNewClientRejectsRelativeBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "api.notion.com", Token: "secret"})
	require.Error(t, err)
}
