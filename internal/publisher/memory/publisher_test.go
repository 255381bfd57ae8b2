package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "pwa.added", map[string]string{"link": "https://squoosh.app"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(ctx, "pwa.archived", "rec-9")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "pwa.added", msgs[0].Event)
	require.Equal(t, "memory-2", msgs[1].ID)
	require.Equal(t, []any{"rec-9"}, pub.Events("pwa.archived"))
	require.Empty(t, pub.Events("pwa.unknown"))

	msgs[0].Event = "modified"
	require.Equal(t, "pwa.added", pub.Messages()[0].Event)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("topic deleted"))
	_, err := pub.Publish(context.Background(), "pwa.added", nil)
	require.EqualError(t, err, "publish pwa.added: topic deleted")
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "pwa.added", nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = pub.Publish(context.Background(), "pwa.added", nil)
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
}
