package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

const defaultRunTable = "runs"

const runColumns = "id, op, started_at, updated_at, finished_at, status, " +
	"total, processed, added, updated, skipped, failed, error_message"

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore connects a pool and returns a RunStore.
func NewRunStore(ctx context.Context, cfg PoolConfig) (*RunStore, error) {
	p, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: defaultRunTable}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, defaultRunTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: table}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart inserts a running run or refreshes the total of an existing one.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, op string, total int64, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, op, started_at, updated_at, status, total)
		VALUES ($1, $2, $3, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET total = EXCLUDED.total, status = EXCLUDED.status;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, op, startedAt, string(store.RunRunning), total); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// AddRunCounters applies outcome deltas to a run.
func (s *RunStore) AddRunCounters(ctx context.Context, runID uuid.UUID, delta store.RunCounters, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET processed = processed + $1,
			added = added + $2,
			updated = updated + $3,
			skipped = skipped + $4,
			failed = failed + $5,
			total = total + $6,
			updated_at = GREATEST(updated_at, $7)
		WHERE id = $8;
	`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		delta.Processed, delta.Added, delta.Updated, delta.Skipped, delta.Failed, delta.Total, at, runID)
	if err != nil {
		return fmt.Errorf("failed to add run counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add counters %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, updated_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Op,
		&run.StartedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
		&status,
		&run.Counters.Total,
		&run.Counters.Processed,
		&run.Counters.Added,
		&run.Counters.Updated,
		&run.Counters.Skipped,
		&run.Counters.Failed,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
