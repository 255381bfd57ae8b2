package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

func TestGateInsertRejectsExactDuplicate(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	gate := NewGate(fs, "pwas")
	entry := store.Entry{Title: "Starbucks", Link: "https://app.starbucks.com", Icon: "https://app.starbucks.com/icon.png"}

	res, err := gate.Insert(context.Background(), entry)
	require.NoError(t, err)
	require.Equal(t, "id-1", res.ID)

	_, err = gate.Insert(context.Background(), entry)
	require.ErrorIs(t, err, ErrDuplicate)
	require.EqualError(t, err, `A PWA with link "https://app.starbucks.com" already exists in the database`)
	require.Len(t, fs.entries, 1)

	// The check is an exact string match.
	entry.Link = "https://app.starbucks.com/"
	_, err = gate.Insert(context.Background(), entry)
	require.NoError(t, err)
	require.Equal(t, []string{"pwas", "pwas", "pwas"}, fs.databases)
}

func TestGateSurfacesStoreErrors(t *testing.T) {
	t.Parallel()

	gate := NewGate(&fakeStore{queryErr: errors.New("notion: 502")}, "pwas")
	_, err := gate.Exists(context.Background(), "https://example.com")
	require.EqualError(t, err, "duplicate check: notion: 502")
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "twitter.com", HostOf("https://www.Twitter.com/home"))
	require.Equal(t, "app.starbucks.com", HostOf("https://app.starbucks.com"))
	require.Equal(t, "not a url", HostOf("not a url"))
}

func TestHostSet(t *testing.T) {
	t.Parallel()

	known := KnownHostsFromEntries([]store.Entry{
		{Link: "https://www.pinterest.com/"},
		{Link: "https://mobile.twitter.com"},
	})
	require.Equal(t, 2, known.Len())
	require.True(t, known.Contains("pinterest.com"))
	require.False(t, known.Contains("twitter.com"))

	seen := NewHostSet()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !seen.Seen("example.com") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, firsts)
}

func TestSeenFilterPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "seen.bloom")
	filter, err := LoadSeenFilter(path, 1000, 0.01)
	require.NoError(t, err)
	require.False(t, filter.Test("example.com"))

	filter.Add("example.com")
	require.True(t, filter.Test("example.com"))
	require.NoError(t, filter.Save())

	reloaded, err := LoadSeenFilter(path, 1000, 0.01)
	require.NoError(t, err)
	require.True(t, reloaded.Test("example.com"))
	require.False(t, reloaded.Test("never-added.example.org"))
	require.NoError(t, reloaded.Save())
}

type fakeStore struct {
	mu        sync.Mutex
	entries   []store.Entry
	databases []string
	queryErr  error
}

func (f *fakeStore) QueryByFieldEquals(_ context.Context, database, field, value string) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.databases = append(f.databases, database)
	var out []store.Record
	for _, e := range f.entries {
		v, err := e.Field(field)
		if err != nil {
			return nil, err
		}
		if v == value {
			out = append(out, store.Record{Entry: e})
		}
	}
	return out, nil
}

func (f *fakeStore) InsertRecord(_ context.Context, _ string, entry store.Entry) (store.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return store.InsertResult{ID: "id-" + string(rune('0'+len(f.entries)))}, nil
}

func (f *fakeStore) PaginatedQuery(context.Context, string, string, string) (store.Page, error) {
	return store.Page{}, nil
}

func (f *fakeStore) UpdateRecord(context.Context, string, string, store.Entry) error {
	return nil
}

func (f *fakeStore) ArchiveRecord(context.Context, string, string) error {
	return nil
}
