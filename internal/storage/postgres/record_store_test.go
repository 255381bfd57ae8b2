package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

func newRecordMock(t *testing.T) (pgxmock.PgxPoolIface, *RecordStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRecordStoreWithPool(mock, "pwas")
	require.NoError(t, err)
	return mock, s
}

func recordRows(mock pgxmock.PgxPoolIface, records ...store.Record) *pgxmock.Rows {
	rows := mock.NewRows([]string{"id", "created_at", "title", "link", "icon", "description", "short_name", "tags"})
	for _, r := range records {
		rows.AddRow(r.ID, r.CreatedAt, r.Title, r.Link, r.Icon, r.Description, r.ShortName, r.Tags)
	}
	return rows
}

func TestNewRecordStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "pwas")
	require.EqualError(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStoreWithPool(mock, "pwas; DROP TABLE x")
	require.EqualError(t, err, `invalid table name "pwas; DROP TABLE x"`)
}

func TestInsertRecordWritesRow(t *testing.T) {
	t.Parallel()

	mock, s := newRecordMock(t)
	entry := store.Entry{Title: "Squoosh", Link: "https://squoosh.app", Icon: "https://squoosh.app/icon.png"}

	mock.ExpectExec("INSERT INTO pwas").
		WithArgs(
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			entry.Title,
			entry.Link,
			entry.Icon,
			"",
			"",
			[]string{},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res, err := s.InsertRecord(context.Background(), "", entry)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryByFieldEquals(t *testing.T) {
	t.Parallel()

	mock, s := newRecordMock(t)
	created := time.Unix(1700000000, 0).UTC()
	rec := store.Record{
		ID:        "rec-1",
		CreatedAt: created,
		Entry: store.Entry{
			Title: "Squoosh",
			Link:  "https://squoosh.app",
			Icon:  "https://squoosh.app/icon.png",
			Tags:  []string{"Imported"},
		},
	}
	mock.ExpectQuery("SELECT id, created_at, title, link, icon, description, short_name, tags FROM pwas WHERE link = ").
		WithArgs("https://squoosh.app").
		WillReturnRows(recordRows(mock, rec))

	got, err := s.QueryByFieldEquals(context.Background(), "pwas", store.FieldLink, "https://squoosh.app")
	require.NoError(t, err)
	require.Equal(t, []store.Record{rec}, got)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = s.QueryByFieldEquals(context.Background(), "pwas", "tags", "x")
	require.ErrorIs(t, err, store.ErrUnknownField)
}

func TestPaginatedQueryReportsNextCursor(t *testing.T) {
	t.Parallel()

	mock, s := newRecordMock(t)
	created := time.Unix(1700000000, 0).UTC()
	records := make([]store.Record, store.PageSize+1)
	for i := range records {
		records[i] = store.Record{ID: "rec", CreatedAt: created, Entry: store.Entry{Title: "t", Tags: []string{}}}
	}
	mock.ExpectQuery("ORDER BY title, created_at, id LIMIT").
		WithArgs(store.PageSize+1, 0).
		WillReturnRows(recordRows(mock, records...))

	page, err := s.PaginatedQuery(context.Background(), "", store.FieldTitle, "")
	require.NoError(t, err)
	require.Len(t, page.Records, store.PageSize)
	require.True(t, page.HasMore)
	require.Equal(t, store.EncodeCursor(store.PageSize), page.NextCursor)

	mock.ExpectQuery("ORDER BY created_at, id LIMIT").
		WithArgs(store.PageSize+1, store.PageSize).
		WillReturnRows(recordRows(mock))

	page, err = s.PaginatedQuery(context.Background(), "", "", page.NextCursor)
	require.NoError(t, err)
	require.Empty(t, page.Records)
	require.False(t, page.HasMore)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = s.PaginatedQuery(context.Background(), "", "", "!!")
	require.ErrorIs(t, err, store.ErrInvalidCursor)
}

func TestUpdateAndArchiveRecord(t *testing.T) {
	t.Parallel()

	mock, s := newRecordMock(t)
	entry := store.Entry{Title: "Squoosh", Link: "https://squoosh.app", Icon: "i", Description: "Image compression"}

	mock.ExpectExec("UPDATE pwas").
		WithArgs(entry.Title, entry.Link, entry.Icon, entry.Description, "", []string{}, "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.UpdateRecord(context.Background(), "", "rec-1", entry))

	mock.ExpectExec("UPDATE pwas SET archived = TRUE").
		WithArgs("rec-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := s.ArchiveRecord(context.Background(), "", "rec-2")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
