package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryField(t *testing.T) {
	t.Parallel()

	e := Entry{Title: "Starbucks", Link: "https://app.starbucks.com", Icon: "i.png", ShortName: "SBUX"}
	v, err := e.Field(FieldShortName)
	require.NoError(t, err)
	require.Equal(t, "SBUX", v)

	_, err = e.Field("tags")
	require.ErrorIs(t, err, ErrUnknownField)
	require.ErrorIs(t, ValidateField("created_time"), ErrUnknownField)
	require.NoError(t, ValidateField(FieldLink))
}

func TestEntryComplete(t *testing.T) {
	t.Parallel()

	require.True(t, Entry{Title: "a", Link: "b", Icon: "c"}.Complete())
	require.False(t, Entry{Title: "a", Link: "b", Icon: "  "}.Complete())
	require.False(t, Entry{}.Complete())
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	offset, err := DecodeCursor("")
	require.NoError(t, err)
	require.Zero(t, offset)

	offset, err = DecodeCursor(EncodeCursor(200))
	require.NoError(t, err)
	require.Equal(t, 200, offset)

	_, err = DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)
	_, err = DecodeCursor(EncodeCursor(-1))
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestRunCountersAdd(t *testing.T) {
	t.Parallel()

	c := RunCounters{Total: 10, Added: 1}
	c.Add(RunCounters{Processed: 3, Added: 1, Skipped: 1, Failed: 1})
	require.Equal(t, RunCounters{Total: 10, Processed: 3, Added: 2, Skipped: 1, Failed: 1}, c)
}
