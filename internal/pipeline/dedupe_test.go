package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

func TestDedupeArchivesRepeatedTitles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	var firstAlpha string
	for i, e := range []store.Entry{
		{Title: "Alpha", Link: "https://alpha.app", Icon: "i"},
		{Title: "Beta", Link: "https://beta.app", Icon: "i"},
		{Title: "Alpha", Link: "https://alpha.example", Icon: "i"},
		{Title: "alpha ", Link: "https://alpha.dev", Icon: "i"},
	} {
		res, err := h.store.InsertRecord(ctx, "pwas", e)
		require.NoError(t, err)
		if i == 0 {
			firstAlpha = res.ID
		}
	}

	dry, err := h.svc.Dedupe(ctx, DedupeRequest{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 2, dry.Reasons[crawler.ReasonDryRun])

	summary, err := h.svc.Dedupe(ctx, DedupeRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Updated)

	page, err := h.store.PaginatedQuery(ctx, "pwas", store.FieldTitle, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, firstAlpha, page.Records[0].ID)
	require.Equal(t, "Beta", page.Records[1].Title)

	again, err := h.svc.Dedupe(ctx, DedupeRequest{})
	require.NoError(t, err)
	require.Zero(t, again.Total)
}

func TestRepeatedTitlesIgnoresBlankTitles(t *testing.T) {
	t.Parallel()

	got := repeatedTitles([]store.Record{
		{ID: "1", Entry: store.Entry{Title: ""}},
		{ID: "2", Entry: store.Entry{Title: " "}},
		{ID: "3", Entry: store.Entry{Title: "X"}},
	})
	require.Empty(t, got)
}
