package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryUpsertsByRunID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "discover-results.json")
	h := NewHistory(path)

	checkpoint := DiscoverSummary{RunID: "run-1", Partial: true, Checked: 1, Found: 1, Results: []DiscoverResult{
		{Domain: "a.app", IsPwa: true},
	}}
	require.NoError(t, h.Save(checkpoint))

	final := DiscoverSummary{RunID: "run-1", Checked: 3, Found: 2, Results: []DiscoverResult{
		{Domain: "a.app", IsPwa: true, Added: true},
		{Domain: "b.com"},
		{Domain: "c.app", IsPwa: true, Skipped: true},
	}}
	require.NoError(t, h.Save(final))
	require.NoError(t, h.Save(DiscoverSummary{RunID: "run-2"}))

	runs, err := h.Load()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.False(t, runs[0].Partial)
	require.Equal(t, 3, runs[0].Checked)
	require.Len(t, runs[0].Results, 2)
	require.Equal(t, "c.app", runs[0].Results[1].Domain)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "]\n"))
	require.Contains(t, string(data), "\n  {\n")
}

func TestHistoryToleratesCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "discover-results.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))
	h := NewHistory(path)

	runs, err := h.Load()
	require.NoError(t, err)
	require.Empty(t, runs)

	require.NoError(t, h.Save(DiscoverSummary{RunID: "run-1"}))
	runs, err = h.Load()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Results)
}

func TestNewHistoryDisabledWithoutPath(t *testing.T) {
	t.Parallel()

	require.Nil(t, NewHistory(""))
}
