package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

func newRunMock(t *testing.T) (pgxmock.PgxPoolIface, *RunStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return mock, s
}

func TestRunLifecycleStatements(t *testing.T) {
	t.Parallel()

	mock, s := newRunMock(t)
	ctx := context.Background()
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(runID, "discover", now, "running", int64(12)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.UpsertRunStart(ctx, runID, "discover", 12, now))

	delta := store.RunCounters{Processed: 3, Added: 1, Skipped: 1, Failed: 1}
	mock.ExpectExec("UPDATE runs").
		WithArgs(int64(3), int64(1), int64(0), int64(1), int64(1), int64(0), now, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.AddRunCounters(ctx, runID, delta, now))

	mock.ExpectExec("UPDATE runs").
		WithArgs(now, "success", (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteRun(ctx, runID, now, store.RunSuccess, nil))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddRunCountersUnknownRun(t *testing.T) {
	t.Parallel()

	mock, s := newRunMock(t)
	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE runs").
		WithArgs(int64(1), int64(0), int64(0), int64(0), int64(0), int64(0), at, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AddRunCounters(context.Background(), runID, store.RunCounters{Processed: 1}, at)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	mock, s := newRunMock(t)
	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	msg := "boom"

	rows := mock.NewRows([]string{
		"id", "op", "started_at", "updated_at", "finished_at", "status",
		"total", "processed", "added", "updated", "skipped", "failed", "error_message",
	}).AddRow(runID, "import", started, finished, &finished, "error",
		int64(4), int64(4), int64(1), int64(0), int64(2), int64(1), &msg)
	mock.ExpectQuery("SELECT id, op, started_at").WithArgs(runID).WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, "import", run.Op)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, store.RunCounters{Total: 4, Processed: 4, Added: 1, Skipped: 2, Failed: 1}, run.Counters)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
	require.Equal(t, "boom", *run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newRunMock(t)
	runID := uuid.New()
	mock.ExpectQuery("SELECT id, op, started_at").WithArgs(runID).WillReturnRows(mock.NewRows([]string{"id"}))

	_, err := s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, s := newRunMock(t)
	status := store.RunRunning
	want := "running"
	mock.ExpectQuery("FROM runs").
		WithArgs(&want, 10, 0).
		WillReturnRows(mock.NewRows([]string{
			"id", "op", "started_at", "updated_at", "finished_at", "status",
			"total", "processed", "added", "updated", "skipped", "failed", "error_message",
		}))

	runs, err := s.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Empty(t, runs)
	require.NoError(t, mock.ExpectationsWereMet())
}
