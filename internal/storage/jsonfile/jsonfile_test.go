package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/hash/sha256"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

func TestReadEntriesMissingFile(t *testing.T) {
	t.Parallel()

	entries, err := ReadEntries(filepath.Join(t.TempDir(), "pwa.json"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteEntriesFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "pwa.json")
	err := WriteEntries(path, []store.Entry{{
		Title:     "Squoosh",
		Link:      "https://squoosh.app",
		Icon:      "https://squoosh.app/icon.png",
		ShortName: "Sq",
	}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := `[
  {
    "title": "Squoosh",
    "link": "https://squoosh.app",
    "icon": "https://squoosh.app/icon.png",
    "short_name": "Sq"
  }
]
`
	require.Equal(t, want, string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestReadEntriesRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pwa.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := ReadEntries(path)
	require.ErrorContains(t, err, "parse")
}

func TestRecordStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewRecordStore(filepath.Join(t.TempDir(), "pwa.json"), sha256.New())
	require.NoError(t, err)

	first, err := s.InsertRecord(ctx, "", store.Entry{Title: "Zeta", Link: "https://zeta.app", Icon: "z.png"})
	require.NoError(t, err)
	require.Len(t, first.ID, idLength)
	second, err := s.InsertRecord(ctx, "", store.Entry{Title: "Alpha", Link: "https://alpha.app", Icon: "a.png"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	found, err := s.QueryByFieldEquals(ctx, "", store.FieldLink, "https://alpha.app")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, second.ID, found[0].ID)

	page, err := s.PaginatedQuery(ctx, "", store.FieldTitle, "")
	require.NoError(t, err)
	require.Equal(t, "Alpha", page.Records[0].Title)
	require.False(t, page.HasMore)

	require.NoError(t, s.UpdateRecord(ctx, "", second.ID, store.Entry{
		Title: "Alpha", Link: "https://alpha.app", Icon: "a.png", Description: "First letter",
	}))
	found, err = s.QueryByFieldEquals(ctx, "", store.FieldDescription, "First letter")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, s.ArchiveRecord(ctx, "", first.ID))
	page, err = s.PaginatedQuery(ctx, "", "", "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	err = s.ArchiveRecord(ctx, "", first.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
