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

const defaultRecordTable = "pwas"

const recordColumns = "id, created_at, title, link, icon, description, short_name, tags"

// RecordStore persists directory entries in Postgres. The database argument
// of each call names the table; an empty name selects the configured default.
type RecordStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// NewRecordStore connects a pool and returns a RecordStore.
func NewRecordStore(ctx context.Context, cfg PoolConfig, table string) (*RecordStore, error) {
	table, err := tableName(table, defaultRecordTable)
	if err != nil {
		return nil, err
	}
	p, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: table, now: time.Now}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, defaultRecordTable)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: table, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *RecordStore) resolve(database string) (string, error) {
	if database == "" {
		return s.table, nil
	}
	return tableName(database, s.table)
}

// QueryByFieldEquals returns live records whose column equals value exactly.
func (s *RecordStore) QueryByFieldEquals(ctx context.Context, database, field, value string) ([]store.Record, error) {
	if err := store.ValidateField(field); err != nil {
		return nil, err
	}
	table, err := s.resolve(database)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND NOT archived ORDER BY created_at, id`,
		recordColumns, table, field)
	rows, err := s.pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

// InsertRecord inserts entry under a fresh UUIDv7 identifier.
func (s *RecordStore) InsertRecord(ctx context.Context, database string, entry store.Entry) (store.InsertResult, error) {
	table, err := s.resolve(database)
	if err != nil {
		return store.InsertResult{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("generate record id: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	created_at,
	title,
	link,
	icon,
	description,
	short_name,
	tags
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, table)

	args := []any{
		id.String(),
		s.now().UTC(),
		entry.Title,
		entry.Link,
		entry.Icon,
		entry.Description,
		entry.ShortName,
		tagsArg(entry.Tags),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return store.InsertResult{}, fmt.Errorf("insert record: %w", err)
	}
	return store.InsertResult{ID: id.String()}, nil
}

// PaginatedQuery lists live records ordered by sortField (creation order when
// empty). One extra row is read to decide HasMore.
func (s *RecordStore) PaginatedQuery(ctx context.Context, database, sortField, cursor string) (store.Page, error) {
	order := "created_at, id"
	if sortField != "" {
		if err := store.ValidateField(sortField); err != nil {
			return store.Page{}, err
		}
		order = sortField + ", created_at, id"
	}
	offset, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.Page{}, err
	}
	table, err := s.resolve(database)
	if err != nil {
		return store.Page{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE NOT archived ORDER BY %s LIMIT $1 OFFSET $2`,
		recordColumns, table, order)
	rows, err := s.pool.Query(ctx, query, store.PageSize+1, offset)
	if err != nil {
		return store.Page{}, fmt.Errorf("list records: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return store.Page{}, err
	}

	page := store.Page{Records: records}
	if page.Records == nil {
		page.Records = []store.Record{}
	}
	if len(records) > store.PageSize {
		page.Records = records[:store.PageSize]
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(offset + store.PageSize)
	}
	return page, nil
}

// UpdateRecord replaces the entry columns of a live record.
func (s *RecordStore) UpdateRecord(ctx context.Context, database, id string, entry store.Entry) error {
	table, err := s.resolve(database)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s
SET title = $1, link = $2, icon = $3, description = $4, short_name = $5, tags = $6
WHERE id = $7 AND NOT archived`, table)
	tag, err := s.pool.Exec(ctx, query,
		entry.Title, entry.Link, entry.Icon, entry.Description, entry.ShortName, tagsArg(entry.Tags), id)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ArchiveRecord flags a live record as archived.
func (s *RecordStore) ArchiveRecord(ctx context.Context, database, id string) error {
	table, err := s.resolve(database)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET archived = TRUE WHERE id = $1 AND NOT archived`, table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]store.Record, error) {
	defer rows.Close()
	var records []store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&rec.Title,
			&rec.Link,
			&rec.Icon,
			&rec.Description,
			&rec.ShortName,
			&rec.Tags,
		); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
